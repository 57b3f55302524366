package ledger

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/xjson"
)

const (
	taskKeyPrefix = "s:t:"
	nodeKeyPrefix = "s:n:"
)

type Options struct {
	// Path is the badger directory; ignored when InMemory is set.
	Path     string
	InMemory bool

	// TTL bounds how long a dismissal is honored. Zero keeps entries
	// until explicitly cleared, matching the observed product behavior.
	TTL time.Duration

	Logger *slog.Logger
}

// Ledger is the durable suppression store. Tuples are written under both
// task and source-node keys so either identifier suppresses.
type Ledger struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

func Open(opts Options) (*Ledger, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}

	return &Ledger{
		db:     db,
		ttl:    opts.TTL,
		logger: opts.Logger.With("component", "suppression-ledger"),
	}, nil
}

func (l *Ledger) Suppress(entry domain.SuppressionEntry) error {
	if entry.Empty() {
		return domain.NewValidationError("suppression entry needs a task id or source node id", nil)
	}

	value, err := xjson.Marshal(entry)
	if err != nil {
		return err
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		for _, key := range entryKeys(entry) {
			e := badger.NewEntry(key, value)
			if l.ttl > 0 {
				e = e.WithTTL(l.ttl)
			}
			if err := txn.SetEntry(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Debug("suppression recorded",
		"task_id", entry.TaskID,
		"source_node_id", entry.SourceNodeID,
	)
	return nil
}

func (l *Ledger) IsSuppressed(taskID, sourceNodeID string) (bool, error) {
	var found bool
	err := l.db.View(func(txn *badger.Txn) error {
		for _, key := range lookupKeys(taskID, sourceNodeID) {
			_, err := txn.Get(key)
			if err == nil {
				found = true
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	return found, err
}

func (l *Ledger) Clear() error {
	return l.db.DropPrefix([]byte("s:"))
}

func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return domain.ErrClosed
	}
	l.closed = true
	return l.db.Close()
}

func entryKeys(entry domain.SuppressionEntry) [][]byte {
	var keys [][]byte
	if entry.TaskID != "" {
		keys = append(keys, []byte(taskKeyPrefix+entry.TaskID))
	}
	if entry.SourceNodeID != "" {
		keys = append(keys, []byte(nodeKeyPrefix+entry.SourceNodeID))
	}
	return keys
}

func lookupKeys(taskID, sourceNodeID string) [][]byte {
	var keys [][]byte
	if taskID != "" {
		keys = append(keys, []byte(taskKeyPrefix+taskID))
	}
	if sourceNodeID != "" {
		keys = append(keys, []byte(nodeKeyPrefix+sourceNodeID))
	}
	return keys
}
