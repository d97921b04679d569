// Package api — auth.go проверяет bearer-токены (HS256).
// Токены выпускает внешний сервис авторизации; нам нужен только sub.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/arx-miner/internal/common"
)

// Authenticator проверяет токен и кладёт user_id в контекст запроса.
type Authenticator struct {
	secret []byte
	leeway time.Duration
}

// NewAuthenticator создаёт проверяльщик с общим секретом.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(strings.TrimSpace(secret)), leeway: 2 * time.Minute}
}

// Middleware пропускает дальше только запросы с валидным токеном.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.UserID(r.Header.Get("Authorization"))
		if err != nil {
			log.WithError(err).WithField("path", r.URL.Path).Debug("Запрос без валидного токена")
			common.WriteError(w, common.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), userID)))
	})
}

// UserID разбирает заголовок Authorization и возвращает пользователя из sub.
func (a *Authenticator) UserID(header string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return uuid.Nil, errors.New("нет bearer-токена")
	}
	if len(a.secret) == 0 {
		return uuid.Nil, errors.New("секрет токенов не настроен")
	}

	token, err := jwt.Parse(strings.TrimSpace(raw), func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(a.leeway))
	if err != nil {
		return uuid.Nil, fmt.Errorf("невалидный токен: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, fmt.Errorf("нет sub: %w", err)
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("sub не UUID: %w", err)
	}
	return userID, nil
}
