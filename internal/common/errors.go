// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях сервиса.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отдавать клиенту понятный статус.
package common

import "errors"

// Ошибки майнинга
var (
	// ErrNoActiveSession — у пользователя нет активной сессии майнинга
	ErrNoActiveSession = errors.New("нет активной сессии майнинга")
	// ErrNothingToClaim — накоплено меньше одного поинта
	ErrNothingToClaim = errors.New("нечего забирать")
	// ErrSessionConflict — сессию изменил другой клиент (вкладка, устройство)
	ErrSessionConflict = errors.New("сессия изменена другим клиентом")
	// ErrCreditDeferred — сессия закрыта, но начисление ушло в бэкфилл
	ErrCreditDeferred = errors.New("начисление отложено")
)

// Ошибки леджера
var (
	// ErrInvalidAmount — некорректная сумма (отрицательная)
	ErrInvalidAmount = errors.New("сумма не может быть отрицательной")
	// ErrDuplicateCredit — начисление с таким ключом уже проведено
	ErrDuplicateCredit = errors.New("начисление уже проведено")
)

// Ошибки доступа
var (
	// ErrUnauthorized — нет или невалидный bearer-токен
	ErrUnauthorized = errors.New("требуется авторизация")
	// ErrWrongPassword — неверный пароль администратора
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
)
