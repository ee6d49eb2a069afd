package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tw-action-bot/internal/infra/metrics"
)

const secondsInADay = 24 * 60 * 60

// Limiter выдерживает минимальный интервал между вызовами одной конечной
// точки, выведенный из дневной квоты. Один экземпляр на одну операцию API.
type Limiter struct {
	name     string
	interval time.Duration
	clock    Clock
	log      zerolog.Logger

	mu   sync.Mutex
	last time.Time
}

// NewLimiter создаёт лимитер с интервалом 86400/perDay секунд.
// Нулевая или отрицательная квота — ошибка конструирования.
func NewLimiter(name string, perDay int, clock Clock, log zerolog.Logger) (*Limiter, error) {
	if perDay <= 0 {
		return nil, fmt.Errorf("лимитер %s: дневная квота должна быть положительной, получили %d", name, perDay)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	interval := time.Duration(float64(secondsInADay) / float64(perDay) * float64(time.Second))
	return &Limiter{name: name, interval: interval, clock: clock, log: log}, nil
}

// Interval возвращает минимальный интервал между вызовами.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Do выдерживает остаток интервала с момента прошлого вызова и затем
// вызывает fn. Вызовы одного лимитера сериализуются: время прошлого вызова
// фиксируется после паузы, под мьютексом, так что два конкурентных вызова
// не могут одновременно решить, что ждать не нужно.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		wait := l.interval - l.clock.Now().Sub(l.last)
		if wait > 0 {
			l.log.Info().Str("limiter", l.name).Dur("wait", wait).Msg("пауза перед вызовом")
			metrics.ObserveLimiterWait(l.name, wait)
			if err := l.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	l.last = l.clock.Now()
	return fn(ctx)
}
