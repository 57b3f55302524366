package ports

import (
	"github.com/eleven-am/loom/internal/domain"
)

// NoticePort receives transient user-facing messages. Publish must not
// block; slow consumers drop rather than stall the engine.
type NoticePort interface {
	Publish(notice domain.Notice)
}
