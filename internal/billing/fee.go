// Package billing реализует расчёт стоимости стоянки по тарифной сетке.
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/parkdesk/internal/model"
)

// BillableHours возвращает длительность стоянки в часах с округлением вверх.
// Отрицательная длительность считается нулевой.
func BillableHours(entry, exit time.Time) int64 {
	elapsed := exit.Sub(entry)
	if elapsed <= 0 {
		return 0
	}
	hours := int64(elapsed / time.Hour)
	if elapsed%time.Hour != 0 {
		hours++
	}
	return hours
}

// CalculateFee вычисляет стоимость стоянки для указанного типа транспорта.
// Если тариф для типа не задан, используется нулевой тариф.
func CalculateFee(entry, exit time.Time, vehicleType model.VehicleType, pricing model.PricingModel) decimal.Decimal {
	tier := pricing[vehicleType]
	hours := BillableHours(entry, exit)

	base := int64(tier.BaseHours)
	if hours <= base {
		return tier.BaseFee
	}

	extra := decimal.NewFromInt(hours - base).Mul(tier.ExtraHourFee)
	return tier.BaseFee.Add(extra)
}

// FormatElapsed форматирует длительность стоянки в виде "2h 15m" или "40m".
func FormatElapsed(entry, at time.Time) string {
	elapsed := at.Sub(entry)
	if elapsed < 0 {
		elapsed = 0
	}
	hours := int64(elapsed / time.Hour)
	minutes := int64((elapsed % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
