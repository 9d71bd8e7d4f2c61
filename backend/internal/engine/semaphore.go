package engine

import (
	"context"
	"errors"
)

const defaultSemaphoreSlots = 100

// Semaphore is a counting semaphore with context-aware acquisition, used to
// bound in-flight work (Kafka sends, websocket op handling).
type Semaphore struct {
	ch chan struct{}
}

func NewSemaphore(slots int) *Semaphore {
	if slots <= 0 {
		slots = defaultSemaphoreSlots
	}
	return &Semaphore{ch: make(chan struct{}, slots)}
}

func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Semaphore) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return errors.New("release without matching acquire")
	}
}
