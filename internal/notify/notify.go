// Package notify отправляет служебные алерты дежурным.
//
// Алерт нужен в одном случае: сессия майнинга закрыта, а начисление
// в леджер не прошло. Такие записи разбираются вручную через бэкфилл.
package notify

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// Alerter доставляет текстовый алерт.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Telegram шлёт алерты в служебный чат.
type Telegram struct {
	bot    *telego.Bot
	chatID int64
}

// NewTelegram создаёт алертер поверх Bot API.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram-бота: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Alert отправляет сообщение в служебный чат.
func (t *Telegram) Alert(ctx context.Context, text string) error {
	if _, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(t.chatID), text)); err != nil {
		return fmt.Errorf("ошибка отправки алерта: %w", err)
	}
	return nil
}

// Log пишет алерт только в лог. Используется, когда Telegram не настроен.
type Log struct{}

// Alert логирует текст на уровне Error.
func (Log) Alert(_ context.Context, text string) error {
	log.WithField("alert", true).Error(text)
	return nil
}

// New выбирает алертер по конфигурации: Telegram, если задан токен, иначе лог.
func New(token string, chatID int64) Alerter {
	if token == "" {
		return Log{}
	}
	tg, err := NewTelegram(token, chatID)
	if err != nil {
		log.WithError(err).Warn("Telegram-алерты недоступны, пишем только в лог")
		return Log{}
	}
	return tg
}
