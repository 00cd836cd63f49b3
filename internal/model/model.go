// Package model содержит доменные сущности парковки: тарифы, сессии, статистику и настройки.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// VehicleType описывает тип транспортного средства.
type VehicleType string

const (
	VehicleCar      VehicleType = "car"
	VehicleBike     VehicleType = "bike"
	VehicleRickshaw VehicleType = "rickshaw"
)

// VehicleTypes перечисляет все поддерживаемые типы транспорта.
var VehicleTypes = []VehicleType{VehicleCar, VehicleBike, VehicleRickshaw}

// ParseVehicleType приводит строку к типу транспорта без учёта регистра.
func ParseVehicleType(s string) (VehicleType, bool) {
	t := VehicleType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range VehicleTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// RateTier описывает тариф для одного типа транспорта.
type RateTier struct {
	BaseHours    int             `json:"baseHours"`
	BaseFee      decimal.Decimal `json:"baseFee"`
	ExtraHourFee decimal.Decimal `json:"extraHourFee"`
}

// PricingModel сопоставляет каждому типу транспорта ровно один тариф.
type PricingModel map[VehicleType]RateTier

// Validate проверяет, что тариф задан для всех типов и не содержит отрицательных значений.
func (p PricingModel) Validate() error {
	for t := range p {
		if _, ok := ParseVehicleType(string(t)); !ok {
			return fmt.Errorf("unknown vehicle type %q in pricing", t)
		}
	}
	for _, t := range VehicleTypes {
		tier, ok := p[t]
		if !ok {
			return fmt.Errorf("pricing for %s is missing", t)
		}
		if tier.BaseHours < 0 {
			return fmt.Errorf("base hours for %s must not be negative", t)
		}
		if tier.BaseFee.IsNegative() || tier.ExtraHourFee.IsNegative() {
			return fmt.Errorf("fees for %s must not be negative", t)
		}
	}
	return nil
}

// PaymentStatus описывает статус оплаты постоянного клиента.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// Session описывает одно пребывание транспорта на парковке от въезда до выезда.
// Отсутствие ExitTime означает, что транспорт всё ещё на парковке.
type Session struct {
	ID            string           `json:"id"`
	Number        string           `json:"number"`
	Type          VehicleType      `json:"type"`
	EntryTime     time.Time        `json:"entryTime"`
	ExitTime      *time.Time       `json:"exitTime,omitempty"`
	Fee           *decimal.Decimal `json:"fee,omitempty"`
	IsPermanent   bool             `json:"isPermanent,omitempty"`
	PaymentStatus PaymentStatus    `json:"paymentStatus,omitempty"`
	PaymentDate   *time.Time       `json:"paymentDate,omitempty"`
}

// Parked сообщает, находится ли транспорт на парковке.
func (s Session) Parked() bool {
	return s.ExitTime == nil
}

// ClientPatch содержит частичное обновление постоянного клиента. Nil-поля не изменяются.
type ClientPatch struct {
	Number        *string          `json:"number,omitempty"`
	Type          *VehicleType     `json:"type,omitempty"`
	EntryTime     *time.Time       `json:"entryTime,omitempty"`
	ExitTime      *time.Time       `json:"exitTime,omitempty"`
	Fee           *decimal.Decimal `json:"fee,omitempty"`
	PaymentStatus *PaymentStatus   `json:"paymentStatus,omitempty"`
	PaymentDate   *time.Time       `json:"paymentDate,omitempty"`
}

// ParkedVehicle описывает транспорт на парковке вместе с текущей стоимостью стоянки.
type ParkedVehicle struct {
	Session
	Code       string          `json:"code"`
	CurrentFee decimal.Decimal `json:"currentFee"`
	Elapsed    string          `json:"elapsed"`
}

// Receipt содержит данные квитанции, которые передаются внешнему рендереру.
type Receipt struct {
	SiteName string          `json:"siteName"`
	Session  Session         `json:"session"`
	Code     string          `json:"code"`
	ExitTime time.Time       `json:"exitTime"`
	Fee      decimal.Decimal `json:"fee"`
	Duration string          `json:"duration"`
}

// DailyStats содержит агрегированную статистику за один календарный день.
type DailyStats struct {
	Date           string          `json:"date"`
	TotalCars      int             `json:"totalCars"`
	TotalBikes     int             `json:"totalBikes"`
	TotalRickshaws int             `json:"totalRickshaws"`
	TotalVehicles  int             `json:"totalVehicles"`
	TotalIncome    decimal.Decimal `json:"totalIncome"`
	Vehicles       []Session       `json:"vehicles"`
}

// Credentials содержит логин и пароль оператора.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ViewMode описывает предпочтительный режим отображения списков.
type ViewMode string

const (
	ViewGrid ViewMode = "grid"
	ViewList ViewMode = "list"
)

// Settings содержит настройки парковки.
type Settings struct {
	SiteName    string       `json:"siteName"`
	Pricing     PricingModel `json:"pricing"`
	Credentials Credentials  `json:"credentials"`
	ViewMode    ViewMode     `json:"viewMode"`
}

// DefaultSettings возвращает настройки, используемые при пустом хранилище.
func DefaultSettings() Settings {
	return Settings{
		SiteName: "Smart Parking System",
		Pricing: PricingModel{
			VehicleCar:      {BaseHours: 10, BaseFee: decimal.NewFromInt(100), ExtraHourFee: decimal.NewFromInt(10)},
			VehicleBike:     {BaseHours: 10, BaseFee: decimal.NewFromInt(50), ExtraHourFee: decimal.NewFromInt(5)},
			VehicleRickshaw: {BaseHours: 10, BaseFee: decimal.NewFromInt(100), ExtraHourFee: decimal.NewFromInt(10)},
		},
		Credentials: Credentials{
			Username: "admin",
			Password: "admin 1234",
		},
		ViewMode: ViewList,
	}
}
