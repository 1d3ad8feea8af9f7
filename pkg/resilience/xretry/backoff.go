package xretry

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"
)

// 影子消费者注册的默认退避参数。
const (
	RegistrationInitialDelay = time.Second
	RegistrationMaxDelay     = 5 * time.Minute
	RegistrationMaxAttempts  = 10
)

// ExponentialBackoff 指数退避：
// delay = min(initial * multiplier^(attempt-1) * (1 ± jitter), max)
type ExponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       float64
}

// ExponentialBackoffOption 指数退避配置选项。
type ExponentialBackoffOption func(*ExponentialBackoff)

// WithInitialDelay d <= 0 时保持默认值。
func WithInitialDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d > 0 {
			b.initialDelay = d
		}
	}
}

// WithMaxDelay d <= 0 时保持默认值。
func WithMaxDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d > 0 {
			b.maxDelay = d
		}
	}
}

// WithMultiplier 小于 1 的值被忽略。
func WithMultiplier(m float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if m >= 1 {
			b.multiplier = m
		}
	}
}

// WithJitter 抖动因子，截断到 [0, 1]。
func WithJitter(j float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		b.jitter = min(max(j, 0), 1)
	}
}

// NewExponentialBackoff 默认 100ms 起步、翻倍、上限 30s、10% 抖动。
func NewExponentialBackoff(opts ...ExponentialBackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initialDelay: 100 * time.Millisecond,
		maxDelay:     30 * time.Second,
		multiplier:   2,
		jitter:       0.1,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.maxDelay < b.initialDelay {
		b.maxDelay = b.initialDelay
	}
	return b
}

// RegistrationBackoff 影子消费者注册退避：1 秒起步翻倍，上限 5 分钟，无抖动。
func RegistrationBackoff() *ExponentialBackoff {
	return NewExponentialBackoff(
		WithInitialDelay(RegistrationInitialDelay),
		WithMaxDelay(RegistrationMaxDelay),
		WithMultiplier(2),
		WithJitter(0),
	)
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	attempt = max(attempt, 1)
	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1))
	if b.jitter > 0 {
		delay *= 1 + (randomFloat64()*2-1)*b.jitter
	}
	// math.Pow 溢出后可能得到 NaN
	if math.IsNaN(delay) || delay < 0 || delay >= float64(b.maxDelay) {
		return b.maxDelay
	}
	return time.Duration(delay)
}

// FixedBackoff 固定延迟。
type FixedBackoff time.Duration

func (b FixedBackoff) NextDelay(int) time.Duration { return max(time.Duration(b), 0) }

var (
	_ BackoffPolicy = (*ExponentialBackoff)(nil)
	_ BackoffPolicy = FixedBackoff(0)
)

func randomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) / (1 << 53)
}
