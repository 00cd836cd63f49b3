package repository

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepository хранит слоты в памяти процесса.
type MemoryRepository struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{slots: make(map[string][]byte)}
}

// Get возвращает содержимое слота.
func (r *MemoryRepository) Get(ctx context.Context, slot string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	payload, ok := r.slots[slot]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return append([]byte(nil), payload...), nil
}

// Put сохраняет содержимое слота.
func (r *MemoryRepository) Put(ctx context.Context, slot string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.slots[slot] = append([]byte(nil), payload...)
	return nil
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}
