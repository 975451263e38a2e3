// Package clock 调度会话的主动续期
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultLeadTime 默认提前续期的时间
	DefaultLeadTime = 5 * time.Minute
	// DefaultMinimumDelay 默认最短调度延迟
	DefaultMinimumDelay = time.Minute
)

// Clock 续期时钟，最多持有一个待触发的定时器
type Clock struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	lead     time.Duration
	minDelay time.Duration
	timer    clockwork.Timer
	seq      uint64 // 每次调度或取消时递增，只有序号匹配的定时器才会触发
}

// Option 时钟选项函数
type Option func(*Clock)

// WithClock 设置时间源
func WithClock(c clockwork.Clock) Option {
	return func(k *Clock) {
		k.clock = c
	}
}

// WithLeadTime 设置提前续期的时间
func WithLeadTime(d time.Duration) Option {
	return func(k *Clock) {
		if d >= 0 {
			k.lead = d
		}
	}
}

// WithMinimumDelay 设置调度延迟的下限
func WithMinimumDelay(d time.Duration) Option {
	return func(k *Clock) {
		if d > 0 {
			k.minDelay = d
		}
	}
}

// New 创建续期时钟，未指定 WithClock 时使用真实时间
func New(opts ...Option) *Clock {
	c := &Clock{
		clock:    clockwork.NewRealClock(),
		lead:     DefaultLeadTime,
		minDelay: DefaultMinimumDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now 返回时间源的当前时间
func (c *Clock) Now() time.Time {
	return c.clock.Now()
}

// Delay 返回 max(expiry - now - lead, minimum)
func (c *Clock) Delay(expiry time.Time) time.Duration {
	d := expiry.Sub(c.clock.Now()) - c.lead
	if d < c.minDelay {
		return c.minDelay
	}
	return d
}

// Schedule 在 Delay(expiry) 之后执行一次 onDue，替换已有的定时器，返回使用的延迟
func (c *Clock) Schedule(expiry time.Time, onDue func()) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.seq++
	seq := c.seq

	d := c.Delay(expiry)
	c.timer = c.clock.AfterFunc(d, func() {
		c.mu.Lock()
		if c.seq != seq {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		c.seq++
		c.mu.Unlock()

		onDue()
	})
	return d
}

// Cancel 停止待触发的定时器，返回是否存在
func (c *Clock) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.timer != nil
	c.stopLocked()
	c.seq++
	return pending
}

// Pending 是否已安排续期
func (c *Clock) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func (c *Clock) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
