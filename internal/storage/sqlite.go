//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"clonebo/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveCampaign(ctx context.Context, snapshot model.CampaignSnapshot) error {
	if snapshot.ID == "" {
		return errors.New("campaign id is required")
	}
	db, err := s.getDB()
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

	_, err = db.ExecContext(ctx, `
		INSERT INTO campaigns (id, schema_version, codec_version, status, updated_at, summary, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			status = excluded.status,
			updated_at = excluded.updated_at,
			summary = excluded.summary,
			payload = excluded.payload
	`, snapshot.ID, snapshot.SchemaVersion, snapshot.CodecVersion, string(snapshot.Status),
		snapshot.UpdatedAt.UTC().Format(time.RFC3339Nano), summary, payload)
	return err
}

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (model.CampaignSnapshot, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.CampaignSnapshot{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM campaigns WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

func (s *SQLiteStore) ListCampaigns(ctx context.Context) ([]model.CampaignSummary, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, summary FROM campaigns`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CampaignSummary
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		summary, err := DecodeSummary(payload)
		if err != nil {
			return nil, fmt.Errorf("decode campaign summary %s: %w", id, err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortSummaries(out)
	return out, nil
}

func (s *SQLiteStore) DeleteCampaign(ctx context.Context, id string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			status TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			summary BLOB NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS campaigns_updated_at ON campaigns (updated_at);
	`)
	return err
}
