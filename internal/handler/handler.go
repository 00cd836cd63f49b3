// Package handler содержит HTTP-обработчики API сервиса парковки.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/parkdesk/internal/identity"
	"github.com/mmeshcher/parkdesk/internal/middleware"
	"github.com/mmeshcher/parkdesk/internal/model"
	"github.com/mmeshcher/parkdesk/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Login(username, password string) bool
	AddVehicle(number string, vehicleType model.VehicleType, entry time.Time) (model.Session, error)
	ExitVehicle(id string, exit time.Time) (model.Receipt, error)
	QuoteExit(id string, at time.Time) (model.Receipt, error)
	Receipt(id string) (model.Receipt, error)
	FindOpenByNumber(number string) (model.Session, error)
	FindOpenByCode(code string) (model.Session, error)
	ParkedVehicles(query string, at time.Time) []model.ParkedVehicle
	Sessions() []model.Session
	AddPermanentClient(client model.Session) (model.Session, error)
	UpdatePermanentClient(id string, patch model.ClientPatch) (model.Session, error)
	RemovePermanentClient(id string) error
	PermanentClients() []model.Session
	Settings() model.Settings
	UpdateSettings(settings model.Settings) error
	TodayStats() model.DailyStats
	DailyStats() []model.DailyStats
	PutDailyStats(rec model.DailyStats) error
}

// Handler реализует HTTP-обработчики API сервиса парковки.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	corsOrigins    []string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, corsOrigins []string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: middleware.NewAuthMiddleware(s),
		corsOrigins:    corsOrigins,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// writeError переводит ошибку сервиса в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		h.logger.Error(op+" error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// decodeOptional декодирует тело запроса, если оно есть.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Health сообщает, что сервис работает.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login проверяет учётные данные оператора.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.service.Login(req.Username, req.Password) {
		h.writeJSON(w, http.StatusUnauthorized, map[string]bool{"success": false})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ListVehicles возвращает все сессии.
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Sessions())
}

type addVehicleRequest struct {
	Number    string            `json:"number"`
	Type      model.VehicleType `json:"type"`
	EntryTime *time.Time        `json:"entryTime,omitempty"`
}

type addVehicleResponse struct {
	ID      string        `json:"id"`
	Code    string        `json:"code"`
	Session model.Session `json:"session"`
}

// AddVehicle регистрирует въезд транспорта.
func (h *Handler) AddVehicle(w http.ResponseWriter, r *http.Request) {
	var req addVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var entry time.Time
	if req.EntryTime != nil {
		entry = *req.EntryTime
	}

	sess, err := h.service.AddVehicle(req.Number, req.Type, entry)
	if err != nil {
		h.writeError(w, "add vehicle", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, addVehicleResponse{
		ID:      sess.ID,
		Code:    identity.DeriveCode(sess.Number, sess.EntryTime),
		Session: sess,
	})
}

// ListParked возвращает транспорт на парковке с текущей стоимостью.
func (h *Handler) ListParked(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.ParkedVehicles(r.URL.Query().Get("q"), time.Time{}))
}

// Lookup ищет транспорт на парковке по номеру или коду и возвращает предварительный расчёт.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	var (
		sess model.Session
		err  error
	)

	q := r.URL.Query()
	switch {
	case q.Get("code") != "":
		sess, err = h.service.FindOpenByCode(q.Get("code"))
	case q.Get("number") != "":
		sess, err = h.service.FindOpenByNumber(q.Get("number"))
	default:
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "number or code is required"})
		return
	}
	if err != nil {
		h.writeError(w, "lookup vehicle", err)
		return
	}

	quote, err := h.service.QuoteExit(sess.ID, time.Time{})
	if err != nil {
		h.writeError(w, "lookup vehicle", err)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

// Quote возвращает предварительный расчёт стоимости выезда.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.service.QuoteExit(chi.URLParam(r, "id"), time.Time{})
	if err != nil {
		h.writeError(w, "quote exit", err)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

type exitVehicleRequest struct {
	ExitTime *time.Time `json:"exitTime,omitempty"`
}

// ExitVehicle фиксирует выезд транспорта и возвращает квитанцию.
func (h *Handler) ExitVehicle(w http.ResponseWriter, r *http.Request) {
	var req exitVehicleRequest
	if err := decodeOptional(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var exit time.Time
	if req.ExitTime != nil {
		exit = *req.ExitTime
	}

	receipt, err := h.service.ExitVehicle(chi.URLParam(r, "id"), exit)
	if err != nil {
		h.writeError(w, "exit vehicle", err)
		return
	}
	h.writeJSON(w, http.StatusOK, receipt)
}

// Receipt возвращает квитанцию завершённой сессии.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.service.Receipt(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "get receipt", err)
		return
	}
	h.writeJSON(w, http.StatusOK, receipt)
}

// ListPermanentClients возвращает постоянных клиентов.
func (h *Handler) ListPermanentClients(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.PermanentClients())
}

// AddPermanentClient добавляет постоянного клиента.
func (h *Handler) AddPermanentClient(w http.ResponseWriter, r *http.Request) {
	var req model.Session
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	client, err := h.service.AddPermanentClient(req)
	if err != nil {
		h.writeError(w, "add permanent client", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, client)
}

// UpdatePermanentClient частично обновляет постоянного клиента.
func (h *Handler) UpdatePermanentClient(w http.ResponseWriter, r *http.Request) {
	var patch model.ClientPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	client, err := h.service.UpdatePermanentClient(chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, "update permanent client", err)
		return
	}
	h.writeJSON(w, http.StatusOK, client)
}

// RemovePermanentClient удаляет постоянного клиента.
func (h *Handler) RemovePermanentClient(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemovePermanentClient(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, "remove permanent client", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings возвращает текущие настройки.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Settings())
}

// UpdateSettings заменяет настройки.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req model.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateSettings(req); err != nil {
		h.writeError(w, "update settings", err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.service.Settings())
}

// ListDailyStats возвращает историю дневной статистики.
func (h *Handler) ListDailyStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.DailyStats())
}

// TodayStats возвращает статистику за текущий день.
func (h *Handler) TodayStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.TodayStats())
}

// PutDailyStats заменяет запись статистики за день.
func (h *Handler) PutDailyStats(w http.ResponseWriter, r *http.Request) {
	var req model.DailyStats
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.PutDailyStats(req); err != nil {
		h.writeError(w, "put daily stats", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, req)
}
