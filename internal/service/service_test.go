package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/parkdesk/internal/identity"
	"github.com/mmeshcher/parkdesk/internal/model"
	"github.com/mmeshcher/parkdesk/internal/repository"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var startOfDay = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store Store) (*Service, *testClock) {
	t.Helper()

	clock := &testClock{now: startOfDay}
	svc := NewService(context.Background(), store, zap.NewNop(), WithClock(clock.Now), WithLocation(time.UTC))
	return svc, clock
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(decimal.RequireFromString(want)), "got %s, want %s", got, want)
}

func TestAddVehicle_Validation(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	_, err := svc.AddVehicle("   ", model.VehicleCar, time.Time{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddVehicle("AB123", model.VehicleType("truck"), time.Time{})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Empty(t, svc.Sessions())
}

func TestAddVehicle_CreatesParkedSession(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	sess, err := svc.AddVehicle(" AB123 ", model.VehicleType("CAR"), time.Time{})
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "AB123", sess.Number)
	assert.Equal(t, model.VehicleCar, sess.Type)
	assert.True(t, sess.EntryTime.Equal(startOfDay))
	assert.True(t, sess.Parked())
	assert.Nil(t, sess.Fee)

	other, err := svc.AddVehicle("AB124", model.VehicleBike, time.Time{})
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, other.ID)
}

func TestExitVehicle_Fee(t *testing.T) {
	tests := []struct {
		name    string
		stay    time.Duration
		wantFee string
	}{
		{name: "within base hours", stay: 5 * time.Hour, wantFee: "100"},
		{name: "rounded up extra hours", stay: 11*time.Hour + 30*time.Minute, wantFee: "120"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, repository.NewMemoryRepository())
			defer svc.Close()

			sess, err := svc.AddVehicle("CAR1", model.VehicleCar, startOfDay)
			require.NoError(t, err)

			receipt, err := svc.ExitVehicle(sess.ID, startOfDay.Add(tt.stay))
			require.NoError(t, err)

			requireDecimal(t, tt.wantFee, receipt.Fee)
			require.NotNil(t, receipt.Session.Fee)
			requireDecimal(t, tt.wantFee, *receipt.Session.Fee)
			require.NotNil(t, receipt.Session.ExitTime)
			assert.True(t, receipt.Session.ExitTime.Equal(startOfDay.Add(tt.stay)))
			assert.Equal(t, identity.DeriveCode("CAR1", startOfDay), receipt.Code)
			assert.Equal(t, "Smart Parking System", receipt.SiteName)
		})
	}
}

func TestExitVehicle_NotFoundDoesNotMutate(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	sess, err := svc.AddVehicle("CAR1", model.VehicleCar, startOfDay)
	require.NoError(t, err)

	_, err = svc.ExitVehicle("missing", startOfDay.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := svc.ExitVehicle(sess.ID, startOfDay.Add(2*time.Hour))
	require.NoError(t, err)

	before, err := json.Marshal(svc.Sessions())
	require.NoError(t, err)

	_, err = svc.ExitVehicle(sess.ID, startOfDay.Add(20*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	after, err := json.Marshal(svc.Sessions())
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.True(t, first.ExitTime.Equal(startOfDay.Add(2*time.Hour)))
}

func TestExitVehicle_ClampsExitBeforeEntry(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	sess, err := svc.AddVehicle("CAR1", model.VehicleCar, startOfDay)
	require.NoError(t, err)

	receipt, err := svc.ExitVehicle(sess.ID, startOfDay.Add(-time.Hour))
	require.NoError(t, err)

	assert.True(t, receipt.Session.ExitTime.Equal(startOfDay))
	requireDecimal(t, "100", receipt.Fee)
}

func TestExitVehicle_UsesCurrentPricing(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	sess, err := svc.AddVehicle("CAR1", model.VehicleCar, startOfDay)
	require.NoError(t, err)

	settings := svc.Settings()
	settings.Pricing[model.VehicleCar] = model.RateTier{
		BaseHours:    1,
		BaseFee:      decimal.NewFromInt(30),
		ExtraHourFee: decimal.NewFromInt(20),
	}
	require.NoError(t, svc.UpdateSettings(settings))

	receipt, err := svc.ExitVehicle(sess.ID, startOfDay.Add(3*time.Hour))
	require.NoError(t, err)
	requireDecimal(t, "70", receipt.Fee)
}

func TestQuoteExit_DoesNotMutate(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	sess, err := svc.AddVehicle("BIKE1", model.VehicleBike, startOfDay)
	require.NoError(t, err)

	quote, err := svc.QuoteExit(sess.ID, startOfDay.Add(12*time.Hour))
	require.NoError(t, err)
	requireDecimal(t, "60", quote.Fee)
	assert.Equal(t, "12h 0m", quote.Duration)

	assert.Len(t, svc.ListParked(), 1)

	_, err = svc.Receipt(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ExitVehicle(sess.ID, startOfDay.Add(time.Hour))
	require.NoError(t, err)

	_, err = svc.QuoteExit(sess.ID, startOfDay.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	receipt, err := svc.Receipt(sess.ID)
	require.NoError(t, err)
	requireDecimal(t, "50", receipt.Fee)
}

func TestFindOpen(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	car, err := svc.AddVehicle("Ab123", model.VehicleCar, startOfDay)
	require.NoError(t, err)
	bike, err := svc.AddVehicle("ZX9", model.VehicleBike, startOfDay.Add(time.Minute))
	require.NoError(t, err)

	got, err := svc.FindOpenByNumber(" aB123 ")
	require.NoError(t, err)
	assert.Equal(t, car.ID, got.ID)

	code := identity.DeriveCode(bike.Number, bike.EntryTime)
	got, err = svc.FindOpenByCode(" " + code + " ")
	require.NoError(t, err)
	assert.Equal(t, bike.ID, got.ID)

	_, err = svc.FindOpenByNumber("")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.FindOpenByCode("  ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ExitVehicle(bike.ID, startOfDay.Add(time.Hour))
	require.NoError(t, err)

	_, err = svc.FindOpenByCode(code)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.FindOpenByNumber("ZX9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindOpenByCode_DistinctNonLatinPlates(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	first, err := svc.AddVehicle("ঢাকা মেট্রো-গ ১১-২২৩৩", model.VehicleCar, startOfDay)
	require.NoError(t, err)
	second, err := svc.AddVehicle("চট্ট মেট্রো-খ ৪৪-৫৫৬৬", model.VehicleCar, startOfDay.Add(20*time.Second))
	require.NoError(t, err)

	firstCode := identity.DeriveCode(first.Number, first.EntryTime)
	secondCode := identity.DeriveCode(second.Number, second.EntryTime)
	require.NotEqual(t, firstCode, secondCode)

	got, err := svc.FindOpenByCode(secondCode)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	receipt, err := svc.ExitVehicle(got.ID, startOfDay.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, second.ID, receipt.Session.ID)

	got, err = svc.FindOpenByCode(firstCode)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestFindOpenByNumber_SkipsExitedDuplicate(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	first, err := svc.AddVehicle("AB123", model.VehicleCar, startOfDay)
	require.NoError(t, err)
	_, err = svc.ExitVehicle(first.ID, startOfDay.Add(time.Hour))
	require.NoError(t, err)

	second, err := svc.AddVehicle("AB123", model.VehicleCar, startOfDay.Add(2*time.Hour))
	require.NoError(t, err)

	got, err := svc.FindOpenByNumber("ab123")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestListParked_Interleaving(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	// въезд в предыдущий день тоже должен попадать в список
	old, err := svc.AddVehicle("OLD1", model.VehicleRickshaw, startOfDay.Add(-30*time.Hour))
	require.NoError(t, err)

	ids := make([]string, 0, 5)
	for _, n := range []string{"A1", "A2", "A3", "A4", "A5"} {
		sess, err := svc.AddVehicle(n, model.VehicleCar, startOfDay)
		require.NoError(t, err)
		ids = append(ids, sess.ID)
	}

	_, err = svc.ExitVehicle(ids[1], startOfDay.Add(time.Hour))
	require.NoError(t, err)
	_, err = svc.ExitVehicle(ids[3], startOfDay.Add(time.Hour))
	require.NoError(t, err)

	got := make([]string, 0)
	for _, sess := range svc.ListParked() {
		assert.Nil(t, sess.ExitTime)
		got = append(got, sess.ID)
	}
	assert.ElementsMatch(t, []string{old.ID, ids[0], ids[2], ids[4]}, got)
}

func TestParkedVehicles(t *testing.T) {
	svc, clock := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	_, err := svc.AddVehicle("KA01", model.VehicleCar, startOfDay)
	require.NoError(t, err)
	_, err = svc.AddVehicle("MH02", model.VehicleBike, startOfDay)
	require.NoError(t, err)

	clock.Set(startOfDay.Add(11*time.Hour + 5*time.Minute))

	all := svc.ParkedVehicles("", time.Time{})
	assert.Len(t, all, 2)

	filtered := svc.ParkedVehicles("ka", time.Time{})
	require.Len(t, filtered, 1)
	assert.Equal(t, "KA01", filtered[0].Number)
	assert.Equal(t, "11h 5m", filtered[0].Elapsed)
	assert.Equal(t, identity.DeriveCode("KA01", startOfDay), filtered[0].Code)
	requireDecimal(t, "120", filtered[0].CurrentFee)
}

func TestTodayStats_Scenario(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	_, err := svc.AddVehicle("CAR1", model.VehicleCar, startOfDay)
	require.NoError(t, err)
	_, err = svc.AddVehicle("CAR2", model.VehicleCar, startOfDay)
	require.NoError(t, err)
	bike, err := svc.AddVehicle("BIKE1", model.VehicleBike, startOfDay)
	require.NoError(t, err)

	_, err = svc.ExitVehicle(bike.ID, startOfDay.Add(2*time.Hour))
	require.NoError(t, err)

	rec := svc.TodayStats()
	assert.Equal(t, "2024-03-10", rec.Date)
	assert.Equal(t, 2, rec.TotalCars)
	assert.Equal(t, 1, rec.TotalBikes)
	assert.Equal(t, 3, rec.TotalVehicles)
	requireDecimal(t, "50", rec.TotalIncome)
	assert.Len(t, rec.Vehicles, 3)
}

func TestTodayStats_IncomeFromOvernightExit(t *testing.T) {
	svc, clock := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	sess, err := svc.AddVehicle("CAR1", model.VehicleCar, startOfDay)
	require.NoError(t, err)

	nextDay := startOfDay.Add(24 * time.Hour)
	clock.Set(nextDay)

	_, err = svc.ExitVehicle(sess.ID, nextDay)
	require.NoError(t, err)

	today := svc.TodayStats()
	assert.Equal(t, "2024-03-11", today.Date)
	assert.Equal(t, 0, today.TotalVehicles)
	requireDecimal(t, "240", today.TotalIncome)

	history := svc.DailyStats()
	require.Len(t, history, 2)
	assert.Equal(t, "2024-03-10", history[0].Date)
	assert.Equal(t, 1, history[0].TotalCars)
	// вчерашняя запись не пересчитывается
	assert.True(t, history[0].TotalIncome.IsZero())
}

func TestTodayStats_EmptyDay(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	rec := svc.TodayStats()
	assert.Equal(t, "2024-03-10", rec.Date)
	assert.Equal(t, 0, rec.TotalVehicles)
	assert.True(t, rec.TotalIncome.IsZero())
	assert.Empty(t, svc.DailyStats())
}

func TestRolloverDay(t *testing.T) {
	svc, clock := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	_, err := svc.AddVehicle("CAR1", model.VehicleCar, startOfDay)
	require.NoError(t, err)

	clock.Set(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
	rec := svc.RolloverDay()

	assert.Equal(t, "2024-03-11", rec.Date)
	assert.Equal(t, 0, rec.TotalVehicles)

	history := svc.DailyStats()
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].TotalVehicles)
}

func TestPutDailyStats(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	err := svc.PutDailyStats(model.DailyStats{Date: "10/03/2024"})
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, svc.PutDailyStats(model.DailyStats{Date: "2024-03-01", TotalVehicles: 3}))
	require.NoError(t, svc.PutDailyStats(model.DailyStats{Date: "2024-03-01", TotalVehicles: 4}))

	history := svc.DailyStats()
	require.Len(t, history, 1)
	assert.Equal(t, 4, history[0].TotalVehicles)
	assert.NotNil(t, history[0].Vehicles)
}

func TestPermanentClients(t *testing.T) {
	svc, clock := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	_, err := svc.AddPermanentClient(model.Session{Number: " ", Type: model.VehicleCar})
	assert.ErrorIs(t, err, ErrValidation)

	client, err := svc.AddPermanentClient(model.Session{
		Number:        "PERM1",
		Type:          model.VehicleCar,
		PaymentStatus: model.PaymentPaid,
	})
	require.NoError(t, err)
	assert.True(t, client.IsPermanent)
	assert.Equal(t, model.PaymentUnpaid, client.PaymentStatus)
	assert.NotEmpty(t, client.ID)

	fee := decimal.NewFromInt(1500)
	number := "PERM-1"
	until := startOfDay.AddDate(0, 0, 30)
	updated, err := svc.UpdatePermanentClient(client.ID, model.ClientPatch{Number: &number, Fee: &fee, ExitTime: &until})
	require.NoError(t, err)
	assert.Equal(t, "PERM-1", updated.Number)
	assert.Equal(t, model.PaymentUnpaid, updated.PaymentStatus)
	requireDecimal(t, "1500", *updated.Fee)

	clock.Set(startOfDay.Add(time.Hour))
	paid := model.PaymentPaid
	updated, err = svc.UpdatePermanentClient(client.ID, model.ClientPatch{PaymentStatus: &paid})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, updated.PaymentStatus)
	require.NotNil(t, updated.PaymentDate)
	assert.True(t, updated.PaymentDate.Equal(startOfDay.Add(time.Hour)))
	assert.True(t, updated.IsPermanent)
	assert.Equal(t, client.ID, updated.ID)

	bad := model.PaymentStatus("later")
	_, err = svc.UpdatePermanentClient(client.ID, model.ClientPatch{PaymentStatus: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdatePermanentClient("missing", model.ClientPatch{})
	assert.ErrorIs(t, err, ErrNotFound)

	// постоянные клиенты не попадают в сессии и статистику
	assert.Empty(t, svc.Sessions())
	assert.Equal(t, 0, svc.TodayStats().TotalVehicles)

	require.NoError(t, svc.RemovePermanentClient(client.ID))
	assert.Empty(t, svc.PermanentClients())
	assert.ErrorIs(t, svc.RemovePermanentClient(client.ID), ErrNotFound)
}

func TestPermanentClients_ExitTimeAndFeeTogether(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	fee := decimal.NewFromInt(1500)
	until := startOfDay.AddDate(0, 0, 30)
	before := startOfDay.Add(-time.Hour)

	tests := []struct {
		name  string
		patch model.ClientPatch
	}{
		{name: "fee without exit time", patch: model.ClientPatch{Fee: &fee}},
		{name: "exit time without fee", patch: model.ClientPatch{ExitTime: &until}},
		{name: "exit before entry", patch: model.ClientPatch{Fee: &fee, ExitTime: &before}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddPermanentClient(model.Session{
				Number:   "PERM1",
				Type:     model.VehicleCar,
				ExitTime: tt.patch.ExitTime,
				Fee:      tt.patch.Fee,
			})
			assert.ErrorIs(t, err, ErrValidation)

			client, err := svc.AddPermanentClient(model.Session{Number: "PERM2", Type: model.VehicleBike})
			require.NoError(t, err)

			_, err = svc.UpdatePermanentClient(client.ID, tt.patch)
			assert.ErrorIs(t, err, ErrValidation)

			stored := svc.PermanentClients()
			idx := slices.IndexFunc(stored, func(c model.Session) bool { return c.ID == client.ID })
			require.GreaterOrEqual(t, idx, 0)
			assert.Nil(t, stored[idx].ExitTime)
			assert.Nil(t, stored[idx].Fee)
		})
	}

	for _, c := range svc.PermanentClients() {
		assert.Equal(t, c.ExitTime == nil, c.Fee == nil, "client %s", c.Number)
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	assert.True(t, svc.Login("admin", "admin 1234"))
	assert.False(t, svc.Login("Admin", "admin 1234"))
	assert.False(t, svc.Login("admin", "admin1234"))

	settings := svc.Settings()
	settings.Credentials = model.Credentials{Username: "operator", Password: "s3cret"}
	require.NoError(t, svc.UpdateSettings(settings))

	assert.True(t, svc.Login("operator", "s3cret"))
	assert.False(t, svc.Login("admin", "admin 1234"))
}

func TestUpdateSettings_Validation(t *testing.T) {
	svc, _ := newTestService(t, repository.NewMemoryRepository())
	defer svc.Close()

	settings := svc.Settings()
	delete(settings.Pricing, model.VehicleRickshaw)
	assert.ErrorIs(t, svc.UpdateSettings(settings), ErrValidation)

	settings = svc.Settings()
	settings.Pricing[model.VehicleBike] = model.RateTier{BaseHours: -1}
	assert.ErrorIs(t, svc.UpdateSettings(settings), ErrValidation)

	settings = svc.Settings()
	settings.Credentials.Username = ""
	assert.ErrorIs(t, svc.UpdateSettings(settings), ErrValidation)

	// исходные настройки не изменились
	assert.Len(t, svc.Settings().Pricing, 3)
	assert.True(t, svc.Login("admin", "admin 1234"))
}

func TestPersistence_RoundTrip(t *testing.T) {
	store := repository.NewMemoryRepository()
	svc, _ := newTestService(t, store)

	car, err := svc.AddVehicle("CAR1", model.VehicleCar, startOfDay)
	require.NoError(t, err)
	_, err = svc.AddVehicle("BIKE1", model.VehicleBike, startOfDay.Add(time.Minute))
	require.NoError(t, err)
	_, err = svc.ExitVehicle(car.ID, startOfDay.Add(11*time.Hour+30*time.Minute))
	require.NoError(t, err)
	_, err = svc.AddPermanentClient(model.Session{Number: "PERM1", Type: model.VehicleRickshaw})
	require.NoError(t, err)

	settings := svc.Settings()
	settings.SiteName = "Lot B"
	settings.ViewMode = model.ViewGrid
	require.NoError(t, svc.UpdateSettings(settings))

	want := snapshot(t, svc)
	require.NoError(t, svc.Close())

	reloaded, _ := newTestService(t, store)
	defer reloaded.Close()

	got := snapshot(t, reloaded)
	for slot, payload := range want {
		assert.JSONEq(t, payload, got[slot], "slot %s", slot)
	}
	assert.Equal(t, model.ViewGrid, reloaded.Settings().ViewMode)
}

func snapshot(t *testing.T, svc *Service) map[string]string {
	t.Helper()

	res := make(map[string]string)
	for slot, v := range map[string]any{
		repository.SlotSessions:         svc.Sessions(),
		repository.SlotPermanentClients: svc.PermanentClients(),
		repository.SlotSettings:         svc.Settings(),
		repository.SlotDailyStats:       svc.DailyStats(),
	} {
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		res[slot] = string(payload)
	}
	return res
}

type failingStore struct {
	mu   sync.Mutex
	puts int
}

func (s *failingStore) Close() error { return nil }

func (s *failingStore) Get(ctx context.Context, slot string) ([]byte, error) {
	return nil, errors.New("disk unavailable")
}

func (s *failingStore) Put(ctx context.Context, slot string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	return errors.New("disk unavailable")
}

func TestPersistenceFailure_KeepsMemoryState(t *testing.T) {
	store := &failingStore{}
	svc, _ := newTestService(t, store)

	assert.Equal(t, "Smart Parking System", svc.Settings().SiteName)

	sess, err := svc.AddVehicle("CAR1", model.VehicleCar, startOfDay)
	require.NoError(t, err)
	_, err = svc.ExitVehicle(sess.ID, startOfDay.Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, svc.Close())

	assert.Len(t, svc.Sessions(), 1)
	assert.Empty(t, svc.ListParked())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Positive(t, store.puts)
}

type countingStore struct {
	*repository.MemoryRepository

	mu     sync.Mutex
	closes int
}

func (s *countingStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func TestClose_ClosesStoreOnce(t *testing.T) {
	store := &countingStore{MemoryRepository: repository.NewMemoryRepository()}
	svc, _ := newTestService(t, store)

	_, err := svc.AddVehicle("CAR1", model.VehicleCar, startOfDay)
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.closes)

	_, err = store.Get(context.Background(), repository.SlotSessions)
	assert.NoError(t, err)
}

func TestLoad_CorruptSlotFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepository()
	require.NoError(t, store.Put(ctx, repository.SlotSettings, []byte(`{"siteName":`)))
	require.NoError(t, store.Put(ctx, repository.SlotSessions, []byte(`"not a list"`)))
	require.NoError(t, store.Put(ctx, repository.SlotPermanentClients, []byte(`[{"id":"c1","number":"P1","type":"car","entryTime":"2024-03-01T10:00:00.000Z","isPermanent":true,"paymentStatus":"unpaid"}]`)))

	svc, _ := newTestService(t, store)
	defer svc.Close()

	assert.Equal(t, model.DefaultSettings().SiteName, svc.Settings().SiteName)
	assert.Empty(t, svc.Sessions())
	require.Len(t, svc.PermanentClients(), 1)
	assert.Equal(t, "P1", svc.PermanentClients()[0].Number)
}

func TestLoad_FillsMissingPricing(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepository()
	require.NoError(t, store.Put(ctx, repository.SlotSettings, []byte(`{"siteName":"Old","pricing":{"car":{"baseHours":2,"baseFee":40,"extraHourFee":5}},"credentials":{"username":"u","password":"p"},"viewMode":"grid"}`)))

	svc, _ := newTestService(t, store)
	defer svc.Close()

	settings := svc.Settings()
	require.NoError(t, settings.Pricing.Validate())
	assert.Equal(t, 2, settings.Pricing[model.VehicleCar].BaseHours)
	assert.Equal(t, "Old", settings.SiteName)
	assert.True(t, svc.Login("u", "p"))
}

func TestWriter_KeepsLatestSnapshot(t *testing.T) {
	store := repository.NewMemoryRepository()
	w := newWriter(store, zap.NewNop())

	for i := 0; i < 50; i++ {
		payload, err := json.Marshal(i)
		require.NoError(t, err)
		w.enqueue(repository.SlotSessions, payload)
	}
	w.close()

	got, err := store.Get(context.Background(), repository.SlotSessions)
	require.NoError(t, err)
	assert.Equal(t, "49", string(got))

	// запись после закрытия игнорируется
	w.enqueue(repository.SlotSessions, []byte("50"))
	got, err = store.Get(context.Background(), repository.SlotSessions)
	require.NoError(t, err)
	assert.Equal(t, "49", string(got))
}
