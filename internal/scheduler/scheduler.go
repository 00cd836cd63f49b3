// Package scheduler запускает ежедневный перерасчёт статистики в полночь.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/parkdesk/internal/model"
)

// rolloverSpec срабатывает в 00:00 по часовому поясу планировщика.
const rolloverSpec = "0 0 * * *"

// Roller открывает запись статистики за новый день.
type Roller interface {
	RolloverDay() model.DailyStats
}

// Scheduler вызывает смену дня при запуске и каждую полночь.
type Scheduler struct {
	roller Roller
	logger *zap.Logger
	cron   *cron.Cron
}

// New создаёт планировщик, работающий в часовом поясе loc.
func New(roller Roller, logger *zap.Logger, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}

	s := &Scheduler{roller: roller, logger: logger}
	cl := cronLogger{logger.Sugar()}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := s.cron.AddFunc(rolloverSpec, s.rollover); err != nil {
		return nil, fmt.Errorf("schedule rollover: %w", err)
	}
	return s, nil
}

// Run выполняет смену дня сразу, затем по расписанию до отмены контекста.
func (s *Scheduler) Run(ctx context.Context) error {
	s.rollover()

	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("next daily rollover", zap.Time("at", e.Next))
	}

	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) rollover() {
	rec := s.roller.RolloverDay()
	s.logger.Debug("rollover finished",
		zap.String("date", rec.Date),
		zap.Int("vehicles", rec.TotalVehicles),
	)
}

// cronLogger передаёт сообщения cron в zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
