package notices

import (
	"log/slog"
	"sync"

	"github.com/eleven-am/loom/internal/domain"
)

// Center fans notices out to subscribers. Delivery is best-effort: a full
// subscriber drops the notice instead of blocking the engine.
type Center struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs []chan domain.Notice
}

func NewCenter(logger *slog.Logger) *Center {
	return &Center{
		logger: logger.With("component", "notice-center"),
	}
}

// Publish sends while holding the read lock so a concurrent cancel cannot
// close a channel mid-send. Sends never block, so the lock is short.
func (c *Center) Publish(notice domain.Notice) {
	c.logger.Debug("notice published",
		"kind", notice.Kind,
		"level", notice.Level,
		"node_id", notice.NodeID,
		"message", notice.Message,
	)

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ch := range c.subs {
		select {
		case ch <- notice:
		default:
			c.logger.Debug("notice dropped, subscriber full", "kind", notice.Kind)
		}
	}
}

func (c *Center) Subscribe(buffer int) (<-chan domain.Notice, func()) {
	ch := make(chan domain.Notice, buffer)

	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.subs {
			if sub == ch {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}
