// Package stats агрегирует дневную статистику парковки.
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/parkdesk/internal/model"
)

// DateLayout задаёт формат ключа дня.
const DateLayout = "2006-01-02"

// DayKey возвращает ключ календарного дня для момента времени в указанной зоне.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// Empty возвращает пустую запись статистики за день.
func Empty(day string) model.DailyStats {
	return model.DailyStats{
		Date:        day,
		TotalIncome: decimal.Zero,
		Vehicles:    []model.Session{},
	}
}

// Recompute пересчитывает статистику за день day по полному списку сессий.
// Количество транспорта считается по въехавшим за день, а доход по выехавшим за день.
func Recompute(sessions []model.Session, day string, loc *time.Location) model.DailyStats {
	rec := Empty(day)

	for _, s := range sessions {
		if DayKey(s.EntryTime, loc) == day {
			rec.Vehicles = append(rec.Vehicles, s)
			rec.TotalVehicles++
			switch s.Type {
			case model.VehicleCar:
				rec.TotalCars++
			case model.VehicleBike:
				rec.TotalBikes++
			case model.VehicleRickshaw:
				rec.TotalRickshaws++
			}
		}

		if s.ExitTime != nil && DayKey(*s.ExitTime, loc) == day && s.Fee != nil {
			rec.TotalIncome = rec.TotalIncome.Add(*s.Fee)
		}
	}

	return rec
}

// Upsert заменяет запись за тот же день или добавляет новую. Остальные дни не изменяются.
// Возвращает новый срез, отсортированный по дате.
func Upsert(history []model.DailyStats, rec model.DailyStats) []model.DailyStats {
	res := make([]model.DailyStats, 0, len(history)+1)
	for _, h := range history {
		if h.Date != rec.Date {
			res = append(res, h)
		}
	}
	res = append(res, rec)

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Date < res[j].Date
	})
	return res
}

// Find возвращает запись за указанный день.
func Find(history []model.DailyStats, day string) (model.DailyStats, bool) {
	for _, h := range history {
		if h.Date == day {
			return h, true
		}
	}
	return model.DailyStats{}, false
}
