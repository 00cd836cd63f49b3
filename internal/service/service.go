// Package service реализует бизнес-логику парковки: сессии, постоянных клиентов,
// настройки и дневную статистику.
package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/parkdesk/internal/billing"
	"github.com/mmeshcher/parkdesk/internal/identity"
	"github.com/mmeshcher/parkdesk/internal/model"
	"github.com/mmeshcher/parkdesk/internal/repository"
	"github.com/mmeshcher/parkdesk/internal/stats"
)

var (
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound возвращается, если запись не найдена или транспорт уже выехал.
	ErrNotFound = errors.New("not found")
)

// Store описывает хранилище слотов, используемое сервисом.
type Store interface {
	Close() error
	Get(ctx context.Context, slot string) ([]byte, error)
	Put(ctx context.Context, slot string, payload []byte) error
}

// Option настраивает сервис.
type Option func(*Service)

// WithClock задаёт источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLocation задаёт часовой пояс, по которому определяется календарный день.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// Service владеет коллекциями парковки. Каждая операция выполняется под одной блокировкой:
// читает текущую коллекцию, фиксирует новую и только после этого ставит снимок на запись.
type Service struct {
	mu         sync.Mutex
	sessions   []model.Session
	clients    []model.Session
	settings   model.Settings
	dailyStats []model.DailyStats

	store     Store
	writer    *writer
	closeOnce sync.Once
	closeErr  error
	logger    *zap.Logger
	now       func() time.Time
	loc       *time.Location
}

// NewService создаёт сервис и загружает коллекции из хранилища.
func NewService(ctx context.Context, store Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sessions = loadSlot(ctx, store, logger, repository.SlotSessions, []model.Session{})
	s.clients = loadSlot(ctx, store, logger, repository.SlotPermanentClients, []model.Session{})
	s.settings = withDefaultPricing(loadSlot(ctx, store, logger, repository.SlotSettings, model.DefaultSettings()))
	s.dailyStats = loadSlot(ctx, store, logger, repository.SlotDailyStats, []model.DailyStats{})

	s.writer = newWriter(store, logger)
	return s
}

func withDefaultPricing(settings model.Settings) model.Settings {
	defaults := model.DefaultSettings().Pricing
	pricing := maps.Clone(settings.Pricing)
	if pricing == nil {
		pricing = model.PricingModel{}
	}
	for _, t := range model.VehicleTypes {
		if _, ok := pricing[t]; !ok {
			pricing[t] = defaults[t]
		}
	}
	settings.Pricing = pricing
	return settings
}

// Close дожидается сохранения всех изменений и закрывает хранилище.
// Повторные вызовы возвращают результат первого.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.writer.close()
		if s.store != nil {
			s.closeErr = s.store.Close()
		}
	})
	return s.closeErr
}

// Login проверяет логин и пароль оператора с учётом регистра.
func (s *Service) Login(username, password string) bool {
	s.mu.Lock()
	creds := s.settings.Credentials
	s.mu.Unlock()

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(creds.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(creds.Password)) == 1
	return userOK && passOK
}

// AddVehicle регистрирует въезд транспорта. Нулевое время въезда означает текущий момент.
func (s *Service) AddVehicle(number string, vehicleType model.VehicleType, entry time.Time) (model.Session, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return model.Session{}, fmt.Errorf("%w: vehicle number is required", ErrValidation)
	}
	t, ok := model.ParseVehicleType(string(vehicleType))
	if !ok {
		return model.Session{}, fmt.Errorf("%w: unknown vehicle type %q", ErrValidation, vehicleType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.IsZero() {
		entry = s.now()
	}

	sess := model.Session{
		ID:        newID(s.sessions),
		Number:    number,
		Type:      t,
		EntryTime: entry.UTC(),
	}

	s.commitSessionsLocked(append(slices.Clone(s.sessions), sess))

	s.logger.Info("vehicle entered",
		zap.String("id", sess.ID),
		zap.String("number", sess.Number),
		zap.String("type", string(sess.Type)),
	)
	return sess, nil
}

// ExitVehicle фиксирует выезд транспорта и рассчитывает стоимость по текущему тарифу.
// Нулевое время выезда означает текущий момент.
func (s *Service) ExitVehicle(id string, exit time.Time) (model.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.sessions, id)
	if idx < 0 || !s.sessions[idx].Parked() {
		return model.Receipt{}, fmt.Errorf("%w: vehicle %s is unknown or already exited", ErrNotFound, id)
	}

	cur := s.sessions[idx]
	exitAt := s.exitInstant(cur, exit)
	fee := billing.CalculateFee(cur.EntryTime, exitAt, cur.Type, s.settings.Pricing)

	cur.ExitTime = &exitAt
	cur.Fee = &fee

	sessions := slices.Clone(s.sessions)
	sessions[idx] = cur
	s.commitSessionsLocked(sessions)

	s.logger.Info("vehicle exited",
		zap.String("id", cur.ID),
		zap.String("number", cur.Number),
		zap.String("fee", fee.String()),
	)
	return s.receiptLocked(cur, exitAt, fee), nil
}

// QuoteExit рассчитывает стоимость выезда на момент at, не изменяя состояние.
func (s *Service) QuoteExit(id string, at time.Time) (model.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.sessions, id)
	if idx < 0 || !s.sessions[idx].Parked() {
		return model.Receipt{}, fmt.Errorf("%w: vehicle %s is unknown or already exited", ErrNotFound, id)
	}

	cur := s.sessions[idx]
	exitAt := s.exitInstant(cur, at)
	fee := billing.CalculateFee(cur.EntryTime, exitAt, cur.Type, s.settings.Pricing)
	return s.receiptLocked(cur, exitAt, fee), nil
}

// Receipt возвращает квитанцию для транспорта, который уже выехал.
func (s *Service) Receipt(id string) (model.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.sessions, id)
	if idx < 0 || s.sessions[idx].Parked() {
		return model.Receipt{}, fmt.Errorf("%w: no finished session %s", ErrNotFound, id)
	}

	cur := s.sessions[idx]
	return s.receiptLocked(cur, *cur.ExitTime, *cur.Fee), nil
}

// FindOpenByNumber ищет транспорт на парковке по номеру без учёта регистра.
func (s *Service) FindOpenByNumber(number string) (model.Session, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return model.Session{}, fmt.Errorf("%w: vehicle number is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.Parked() && strings.EqualFold(sess.Number, number) {
			return sess, nil
		}
	}
	return model.Session{}, fmt.Errorf("%w: vehicle %s not found or already exited", ErrNotFound, number)
}

// FindOpenByCode ищет транспорт на парковке по идентификационному коду.
func (s *Service) FindOpenByCode(code string) (model.Session, error) {
	code = identity.Normalize(code)
	if code == "" {
		return model.Session{}, fmt.Errorf("%w: code is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.Parked() && identity.DeriveCode(sess.Number, sess.EntryTime) == code {
			return sess, nil
		}
	}
	return model.Session{}, fmt.Errorf("%w: invalid code or vehicle already exited", ErrNotFound)
}

// ListParked возвращает весь транспорт, который ещё не выехал, независимо от даты въезда.
func (s *Service) ListParked() []model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return parked(s.sessions)
}

// ParkedVehicles возвращает транспорт на парковке, номер которого содержит query,
// вместе с текущей стоимостью стоянки на момент at.
func (s *Service) ParkedVehicles(query string, at time.Time) []model.ParkedVehicle {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	defer s.mu.Unlock()

	if at.IsZero() {
		at = s.now()
	}

	res := make([]model.ParkedVehicle, 0)
	for _, sess := range parked(s.sessions) {
		if query != "" && !strings.Contains(strings.ToLower(sess.Number), query) {
			continue
		}
		res = append(res, model.ParkedVehicle{
			Session:    sess,
			Code:       identity.DeriveCode(sess.Number, sess.EntryTime),
			CurrentFee: billing.CalculateFee(sess.EntryTime, at, sess.Type, s.settings.Pricing),
			Elapsed:    billing.FormatElapsed(sess.EntryTime, at),
		})
	}
	return res
}

// Sessions возвращает все сессии.
func (s *Service) Sessions() []model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.sessions)
}

// AddPermanentClient добавляет постоянного клиента со статусом «не оплачено».
func (s *Service) AddPermanentClient(client model.Session) (model.Session, error) {
	client.Number = strings.TrimSpace(client.Number)
	if client.Number == "" {
		return model.Session{}, fmt.Errorf("%w: vehicle number is required", ErrValidation)
	}
	t, ok := model.ParseVehicleType(string(client.Type))
	if !ok {
		return model.Session{}, fmt.Errorf("%w: unknown vehicle type %q", ErrValidation, client.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client.EntryTime.IsZero() {
		client.EntryTime = s.now()
	}

	client.ID = newID(s.clients)
	client.Type = t
	client.IsPermanent = true
	client.PaymentStatus = model.PaymentUnpaid
	client.EntryTime = client.EntryTime.UTC()
	client.ExitTime = utcPtr(client.ExitTime)
	client.PaymentDate = utcPtr(client.PaymentDate)
	if err := checkExitAndFee(client); err != nil {
		return model.Session{}, err
	}

	s.commitClientsLocked(append(slices.Clone(s.clients), client))
	return client, nil
}

// UpdatePermanentClient частично обновляет постоянного клиента.
func (s *Service) UpdatePermanentClient(id string, patch model.ClientPatch) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.clients, id)
	if idx < 0 {
		return model.Session{}, fmt.Errorf("%w: permanent client %s", ErrNotFound, id)
	}

	updated, err := s.applyPatch(s.clients[idx], patch)
	if err != nil {
		return model.Session{}, err
	}

	clients := slices.Clone(s.clients)
	clients[idx] = updated
	s.commitClientsLocked(clients)
	return updated, nil
}

func (s *Service) applyPatch(c model.Session, patch model.ClientPatch) (model.Session, error) {
	if patch.Number != nil {
		number := strings.TrimSpace(*patch.Number)
		if number == "" {
			return c, fmt.Errorf("%w: vehicle number is required", ErrValidation)
		}
		c.Number = number
	}
	if patch.Type != nil {
		t, ok := model.ParseVehicleType(string(*patch.Type))
		if !ok {
			return c, fmt.Errorf("%w: unknown vehicle type %q", ErrValidation, *patch.Type)
		}
		c.Type = t
	}
	if patch.EntryTime != nil {
		c.EntryTime = patch.EntryTime.UTC()
	}
	if patch.ExitTime != nil {
		c.ExitTime = utcPtr(patch.ExitTime)
	}
	if patch.Fee != nil {
		if patch.Fee.IsNegative() {
			return c, fmt.Errorf("%w: fee must not be negative", ErrValidation)
		}
		fee := *patch.Fee
		c.Fee = &fee
	}
	if patch.PaymentDate != nil {
		c.PaymentDate = utcPtr(patch.PaymentDate)
	}
	if patch.PaymentStatus != nil {
		switch *patch.PaymentStatus {
		case model.PaymentPaid:
			if c.PaymentDate == nil {
				now := s.now().UTC()
				c.PaymentDate = &now
			}
		case model.PaymentUnpaid:
		default:
			return c, fmt.Errorf("%w: unknown payment status %q", ErrValidation, *patch.PaymentStatus)
		}
		c.PaymentStatus = *patch.PaymentStatus
	}
	if err := checkExitAndFee(c); err != nil {
		return c, err
	}
	return c, nil
}

// checkExitAndFee проверяет, что время выезда и стоимость заданы только вместе
// и выезд не раньше въезда.
func checkExitAndFee(c model.Session) error {
	if (c.ExitTime == nil) != (c.Fee == nil) {
		return fmt.Errorf("%w: exit time and fee must be set together", ErrValidation)
	}
	if c.ExitTime != nil && c.ExitTime.Before(c.EntryTime) {
		return fmt.Errorf("%w: exit time is before entry time", ErrValidation)
	}
	if c.Fee != nil && c.Fee.IsNegative() {
		return fmt.Errorf("%w: fee must not be negative", ErrValidation)
	}
	return nil
}

// RemovePermanentClient удаляет постоянного клиента.
func (s *Service) RemovePermanentClient(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.clients, id)
	if idx < 0 {
		return fmt.Errorf("%w: permanent client %s", ErrNotFound, id)
	}

	s.commitClientsLocked(slices.Delete(slices.Clone(s.clients), idx, idx+1))
	return nil
}

// PermanentClients возвращает всех постоянных клиентов.
func (s *Service) PermanentClients() []model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.clients)
}

// Settings возвращает текущие настройки.
func (s *Service) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.settings
	settings.Pricing = maps.Clone(s.settings.Pricing)
	return settings
}

// UpdateSettings заменяет настройки. Новый тариф применяется к следующим выездам.
func (s *Service) UpdateSettings(settings model.Settings) error {
	if err := settings.Pricing.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if settings.Credentials.Username == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}

	settings.Pricing = maps.Clone(settings.Pricing)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	s.persistLocked(repository.SlotSettings, s.settings)
	return nil
}

// TodayStats возвращает статистику за текущий день или пустую запись, если её ещё нет.
func (s *Service) TodayStats() model.DailyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := stats.DayKey(s.now(), s.loc)
	if rec, ok := stats.Find(s.dailyStats, today); ok {
		return rec
	}
	return stats.Empty(today)
}

// DailyStats возвращает историю дневной статистики, отсортированную по дате.
func (s *Service) DailyStats() []model.DailyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.dailyStats)
}

// PutDailyStats заменяет запись статистики за день rec.Date.
func (s *Service) PutDailyStats(rec model.DailyStats) error {
	if _, err := time.Parse(stats.DateLayout, rec.Date); err != nil {
		return fmt.Errorf("%w: date must have layout %s", ErrValidation, stats.DateLayout)
	}
	if rec.Vehicles == nil {
		rec.Vehicles = []model.Session{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dailyStats = stats.Upsert(s.dailyStats, rec)
	s.persistLocked(repository.SlotDailyStats, s.dailyStats)
	return nil
}

// RolloverDay пересчитывает статистику за текущий день. Вызывается при смене суток,
// чтобы запись нового дня существовала даже без изменений.
func (s *Service) RolloverDay() model.DailyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.refreshTodayLocked()
	s.logger.Info("daily stats rolled over", zap.String("date", rec.Date))
	return rec
}

func (s *Service) commitSessionsLocked(sessions []model.Session) {
	s.sessions = sessions
	s.persistLocked(repository.SlotSessions, s.sessions)
	s.refreshTodayLocked()
}

func (s *Service) commitClientsLocked(clients []model.Session) {
	s.clients = clients
	s.persistLocked(repository.SlotPermanentClients, s.clients)
}

func (s *Service) refreshTodayLocked() model.DailyStats {
	today := stats.DayKey(s.now(), s.loc)
	rec := stats.Recompute(s.sessions, today, s.loc)
	s.dailyStats = stats.Upsert(s.dailyStats, rec)
	s.persistLocked(repository.SlotDailyStats, s.dailyStats)
	return rec
}

// persistLocked кодирует снимок под блокировкой и передаёт его фоновой записи.
func (s *Service) persistLocked(slot string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode slot failed", zap.String("slot", slot), zap.Error(err))
		return
	}
	s.writer.enqueue(slot, payload)
}

func (s *Service) exitInstant(sess model.Session, at time.Time) time.Time {
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	if at.Before(sess.EntryTime) {
		return sess.EntryTime
	}
	return at
}

func (s *Service) receiptLocked(sess model.Session, exitAt time.Time, fee decimal.Decimal) model.Receipt {
	return model.Receipt{
		SiteName: s.settings.SiteName,
		Session:  sess,
		Code:     identity.DeriveCode(sess.Number, sess.EntryTime),
		ExitTime: exitAt,
		Fee:      fee,
		Duration: billing.FormatElapsed(sess.EntryTime, exitAt),
	}
}

func parked(sessions []model.Session) []model.Session {
	res := make([]model.Session, 0)
	for _, sess := range sessions {
		if sess.Parked() {
			res = append(res, sess)
		}
	}
	return res
}

func indexOf(sessions []model.Session, id string) int {
	return slices.IndexFunc(sessions, func(s model.Session) bool {
		return s.ID == id
	})
}

func newID(existing []model.Session) string {
	for {
		id := uuid.NewString()
		if indexOf(existing, id) < 0 {
			return id
		}
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
