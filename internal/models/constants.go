package models

import "slices"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
	StatusRefunded  = "refunded"
	StatusExpired   = "expired"
)

// ActiveStatuses статусы, занимающие слот.
var ActiveStatuses = []string{StatusPending, StatusConfirmed, StatusCompleted}

var transitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusRejected, StatusExpired},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusRejected, StatusRefunded},
	StatusCompleted: {StatusRefunded},
	StatusCancelled: {StatusRefunded},
	StatusRejected:  {StatusRefunded},
}

func IsActiveStatus(status string) bool {
	return slices.Contains(ActiveStatuses, status)
}

// IsValidStatus сообщает, известен ли статус.
func IsValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled,
		StatusRejected, StatusRefunded, StatusExpired:
		return true
	}
	return false
}

// CanTransition сообщает, допустим ли переход между статусами.
func CanTransition(from, to string) bool {
	return slices.Contains(transitions[from], to)
}

const (
	// DefaultSlotMinutes размер слота, если не задан ни в запросе, ни у площадки
	DefaultSlotMinutes = 30

	// DefaultCurrency валюта по умолчанию
	DefaultCurrency = "inr"

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// DefaultListLimit размер выборки списков по умолчанию
	DefaultListLimit = 50

	// MaxListLimit верхняя граница выборки списков
	MaxListLimit = 500
)
