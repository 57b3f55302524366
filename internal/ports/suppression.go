package ports

import (
	"github.com/eleven-am/loom/internal/domain"
)

// SuppressionLedger is the durable record of dismissed results. Entries
// are appended on dismissal and consulted by the materializer; they are
// never mutated.
type SuppressionLedger interface {
	Suppress(entry domain.SuppressionEntry) error
	IsSuppressed(taskID, sourceNodeID string) (bool, error)
	Clear() error
	Close() error
}
