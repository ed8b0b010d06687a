package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/avaestate/ava-agent/internal/agent/model"
	errx "github.com/avaestate/ava-agent/internal/core/error"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

// BadgerOptions configures the embedded checkpoint store.
type BadgerOptions struct {
	// Dir holds the data files. Required unless InMemory is set.
	Dir      string
	InMemory bool
	// TTL expires idle threads. Zero keeps them forever.
	TTL time.Duration
}

// BadgerCheckpointStore keeps msgpack-encoded states in BadgerDB under
// thread:{id}.
type BadgerCheckpointStore struct {
	db  *badger.DB
	ttl time.Duration
}

func NewBadgerCheckpointStore(opts BadgerOptions) (*BadgerCheckpointStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger checkpoint store: Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerCheckpointStore{db: db, ttl: opts.TTL}, nil
}

func threadKey(threadID string) []byte {
	return []byte("thread:" + threadID)
}

func (b *BadgerCheckpointStore) Load(_ context.Context, threadID string) (*model.ConversationState, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(threadKey(threadID))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errx.WrapStore(err)
	}

	var s model.ConversationState
	if err := msgpack.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", threadID, err)
	}
	if s.Messages == nil {
		s.Messages = []model.Message{}
	}
	return &s, nil
}

func (b *BadgerCheckpointStore) Save(_ context.Context, s *model.ConversationState) error {
	if s == nil || s.ThreadID == "" {
		return errx.ErrMissingThreadID
	}
	val, err := msgpack.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", s.ThreadID, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(threadKey(s.ThreadID), val)
		if b.ttl > 0 {
			e = e.WithTTL(b.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", s.ThreadID).Msg("failed to save checkpoint to badger")
		return errx.WrapStore(err)
	}
	return nil
}

func (b *BadgerCheckpointStore) Delete(_ context.Context, threadID string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(threadKey(threadID))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return errx.WrapStore(err)
	}
	return nil
}

func (b *BadgerCheckpointStore) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's own logging through logx. Info and debug
// chatter is dropped.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logx.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...any) {
	logx.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}

var _ model.CheckpointStore = (*BadgerCheckpointStore)(nil)
