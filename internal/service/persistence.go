package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/parkdesk/internal/repository"
)

const writeTimeout = 10 * time.Second

// loadSlot читает слот и декодирует его. При отсутствии слота, ошибке чтения
// или повреждённых данных возвращается значение по умолчанию.
func loadSlot[T any](ctx context.Context, store Store, logger *zap.Logger, slot string, def T) T {
	payload, err := store.Get(ctx, slot)
	if err != nil {
		if !errors.Is(err, repository.ErrSlotNotFound) {
			logger.Warn("load slot failed, using default", zap.String("slot", slot), zap.Error(err))
		}
		return def
	}

	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		logger.Warn("corrupt slot, using default", zap.String("slot", slot), zap.Error(err))
		return def
	}
	return v
}

// writer последовательно сохраняет снимки коллекций в фоне.
// Для каждого слота хранится только последний снимок: он полностью заменяет предыдущие.
type writer struct {
	store  Store
	logger *zap.Logger

	mu      sync.Mutex
	order   []string
	pending map[string][]byte
	closed  bool

	wake chan struct{}
	done chan struct{}
}

type writeJob struct {
	slot    string
	payload []byte
}

func newWriter(store Store, logger *zap.Logger) *writer {
	w := &writer{
		store:   store,
		logger:  logger,
		pending: make(map[string][]byte),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// enqueue ставит снимок в очередь и никогда не блокируется на вводе-выводе.
func (w *writer) enqueue(slot string, payload []byte) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("writer closed, dropping snapshot", zap.String("slot", slot))
		return
	}
	if _, ok := w.pending[slot]; !ok {
		w.order = append(w.order, slot)
	}
	w.pending[slot] = payload
	w.mu.Unlock()

	w.signal()
}

func (w *writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) take() ([]writeJob, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	batch := make([]writeJob, 0, len(w.order))
	for _, slot := range w.order {
		batch = append(batch, writeJob{slot: slot, payload: w.pending[slot]})
	}
	w.order = nil
	w.pending = make(map[string][]byte)
	return batch, w.closed
}

func (w *writer) run() {
	defer close(w.done)

	for range w.wake {
		for {
			batch, closed := w.take()
			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
			for _, job := range batch {
				w.write(job)
			}
		}
	}
}

func (w *writer) write(job writeJob) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := w.store.Put(ctx, job.slot, job.payload); err != nil {
		w.logger.Error("save slot failed", zap.String("slot", job.slot), zap.Error(err))
	}
}

// close дожидается записи всех поставленных в очередь снимков.
func (w *writer) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.signal()
	<-w.done
}
