package ratelimit

import (
	"context"
	"time"
)

// Clock абстрагирует время для лимитера и пауз контроллера.
type Clock interface {
	Now() time.Time
	// Sleep ждёт d или отмену контекста.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock реализует Clock поверх пакета time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
