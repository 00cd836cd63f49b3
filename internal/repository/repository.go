// Package repository содержит хранилища слотов вида «ключ: JSON-документ» для данных парковки.
package repository

import "errors"

// Имена слотов, в которых хранятся коллекции парковки.
const (
	SlotSessions         = "parking_vehicles"
	SlotSettings         = "parking_settings"
	SlotDailyStats       = "parking_daily_stats"
	SlotPermanentClients = "parking_permanent_clients"
)

var (
	// ErrSlotNotFound возвращается, если слот ещё ни разу не сохранялся.
	ErrSlotNotFound = errors.New("slot not found")
	// ErrPersistence оборачивает ошибки чтения и записи хранилища.
	ErrPersistence = errors.New("persistence failure")
)
