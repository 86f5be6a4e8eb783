package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"clonebo/internal/model"
)

const (
	campaignPrefix = "campaign/"
	summaryPrefix  = "summary/"
)

type BadgerOptions struct {
	Path     string
	InMemory bool
	// Logger receives badger's internal log lines; nil silences them.
	Logger *slog.Logger
}

// BadgerStore keeps each campaign under campaign/<id> with its listing
// summary under summary/<id>, written in one transaction.
type BadgerStore struct {
	opts BadgerOptions

	mu sync.RWMutex
	db *badger.DB
}

func NewBadgerStore(opts BadgerOptions) *BadgerStore {
	return &BadgerStore{opts: opts}
}

func (s *BadgerStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}
	var opts badger.Options
	if s.opts.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if s.opts.Path == "" {
			return errors.New("badger path is required")
		}
		if err := os.MkdirAll(s.opts.Path, 0o750); err != nil {
			return fmt.Errorf("create badger directory %s: %w", s.opts.Path, err)
		}
		opts = badger.DefaultOptions(s.opts.Path)
	}
	if s.opts.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: s.opts.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger database: %w", err)
	}
	s.db = db
	return nil
}

func (s *BadgerStore) SaveCampaign(ctx context.Context, snapshot model.CampaignSnapshot) error {
	if snapshot.ID == "" {
		return errors.New("campaign id is required")
	}
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	snapshot = Stamp(snapshot)
	payload, err := EncodeCampaign(snapshot)
	if err != nil {
		return err
	}
	summary, err := EncodeSummary(snapshot.Summary())
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(campaignPrefix+snapshot.ID), payload); err != nil {
			return err
		}
		return txn.Set([]byte(summaryPrefix+snapshot.ID), summary)
	})
}

func (s *BadgerStore) GetCampaign(ctx context.Context, id string) (model.CampaignSnapshot, bool, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return model.CampaignSnapshot{}, false, err
	}
	var payload []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(campaignPrefix + id))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return model.CampaignSnapshot{}, false, nil
		}
		return model.CampaignSnapshot{}, false, err
	}
	snapshot, err := DecodeCampaign(payload)
	if err != nil {
		return model.CampaignSnapshot{}, false, fmt.Errorf("decode campaign %s: %w", id, err)
	}
	return snapshot, true, nil
}

func (s *BadgerStore) ListCampaigns(ctx context.Context) ([]model.CampaignSummary, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.CampaignSummary
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(summaryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				summary, err := DecodeSummary(val)
				if err != nil {
					return fmt.Errorf("decode campaign summary %s: %w", item.Key(), err)
				}
				out = append(out, summary)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortSummaries(out)
	return out, nil
}

func (s *BadgerStore) DeleteCampaign(ctx context.Context, id string) error {
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(campaignPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(summaryPrefix + id))
	})
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BadgerStore) getDB(ctx context.Context) (*badger.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
