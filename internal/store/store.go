// Package store persists StructuralManifests: versioned by
// (regionId, sourceUrl, dataType), with exactly one active row per
// identity at a time, the way the teacher's store package wraps
// sqlc-generated queries around a shared *sql.DB.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"civicpipe/internal/db"
	"civicpipe/internal/model"
)

// ErrConflict is returned by Save when a concurrent writer raced the
// deactivate-then-insert transaction and won; the caller should retry
// with a fresh MaxVersion read.
var ErrConflict = errors.New("store: concurrent manifest write conflict")

// ErrNotFound names the no-manifest case. FindLatest does not return
// it: an identity with no stored manifest yields (nil, nil).
var ErrNotFound = errors.New("store: no manifest found")

// ManifestStore is the persistence contract the Pipeline Orchestrator
// depends on.
type ManifestStore interface {
	FindLatest(ctx context.Context, identity model.Identity) (*model.StructuralManifest, error)
	Save(ctx context.Context, manifest model.StructuralManifest) (model.StructuralManifest, error)
	IncrementSuccess(ctx context.Context, id string) error
	IncrementFailure(ctx context.Context, id string) error
	MarkChecked(ctx context.Context, id string) error
	GetHistory(ctx context.Context, identity model.Identity) ([]model.StructuralManifest, error)
}

// DBTX is the subset of *sql.DB the Store needs, narrowed so callers
// can also hand it an open *sql.Tx in tests.
type DBTX = db.DBTX

// TxBeginner is satisfied by the NewSQL adapter around a *sql.DB; Store
// uses it to run the deactivate-then-insert sequence atomically.
type TxBeginner interface {
	DBTX
	BeginTx(ctx context.Context, opts *TxOptions) (Tx, error)
}

// Tx is the minimal transaction handle Store needs.
type Tx interface {
	DBTX
	Commit() error
	Rollback() error
}

// TxOptions mirrors *sql.TxOptions for TxBeginner.BeginTx; the NewSQL
// adapter ignores it and begins a transaction with default options.
type TxOptions struct {
	Isolation int
	ReadOnly  bool
}

// Store is the Postgres-backed ManifestStore.
type Store struct {
	beginner TxBeginner
}

// New constructs a Store bound to beginner, typically a *sql.DB wrapped
// by NewSQL (sql_adapter.go).
func New(beginner TxBeginner) *Store {
	return &Store{beginner: beginner}
}

func (s *Store) FindLatest(ctx context.Context, identity model.Identity) (*model.StructuralManifest, error) {
	q := db.New(s.beginner)
	row, err := q.GetActiveManifest(ctx, identity.RegionID, identity.SourceURL, identity.DataType)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	m, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Save atomically deactivates any existing active manifest for
// manifest's identity and inserts manifest as the next version. It
// assigns manifest.Version itself (existing max + 1) and returns the
// stored copy, including its generated ID.
func (s *Store) Save(ctx context.Context, manifest model.StructuralManifest) (model.StructuralManifest, error) {
	tx, err := s.beginner.BeginTx(ctx, &TxOptions{})
	if err != nil {
		return model.StructuralManifest{}, err
	}
	defer tx.Rollback()

	q := db.New(tx)

	maxVersion, err := q.MaxVersion(ctx, manifest.RegionID, manifest.SourceURL, manifest.DataType)
	if err != nil {
		return model.StructuralManifest{}, err
	}

	if _, err := q.DeactivateManifestsForIdentity(ctx, manifest.RegionID, manifest.SourceURL, manifest.DataType); err != nil {
		return model.StructuralManifest{}, err
	}

	rulesJSON, err := json.Marshal(manifest.ExtractionRules)
	if err != nil {
		return model.StructuralManifest{}, err
	}

	id := uuid.New()
	manifest.Version = int(maxVersion) + 1
	manifest.ID = id.String()
	manifest.IsActive = true
	if manifest.CreatedAt.IsZero() {
		manifest.CreatedAt = time.Now().UTC()
	}

	err = q.InsertManifest(ctx, db.InsertManifestParams{
		ID:              id,
		RegionID:        manifest.RegionID,
		SourceURL:       manifest.SourceURL,
		DataType:        manifest.DataType,
		Version:         int32(manifest.Version),
		StructureHash:   manifest.StructureHash,
		PromptHash:      manifest.PromptHash,
		ExtractionRules: rulesJSON,
		Confidence:      manifest.Confidence,
		LlmProvider:     sql.NullString{String: manifest.LLMProvider, Valid: manifest.LLMProvider != ""},
		LlmModel:        sql.NullString{String: manifest.LLMModel, Valid: manifest.LLMModel != ""},
		LlmTokensUsed:   sql.NullInt32{Int32: int32(manifest.LLMTokensUsed), Valid: manifest.LLMTokensUsed != 0},
		AnalysisTimeMs:  sql.NullInt64{Int64: manifest.AnalysisTimeMs, Valid: manifest.AnalysisTimeMs != 0},
		CreatedAt:       manifest.CreatedAt,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return model.StructuralManifest{}, ErrConflict
		}
		return model.StructuralManifest{}, err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return model.StructuralManifest{}, ErrConflict
		}
		return model.StructuralManifest{}, err
	}

	return manifest, nil
}

func (s *Store) IncrementSuccess(ctx context.Context, id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	return db.New(s.beginner).IncrementSuccess(ctx, parsed, time.Now().UTC())
}

func (s *Store) IncrementFailure(ctx context.Context, id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	return db.New(s.beginner).IncrementFailure(ctx, parsed, time.Now().UTC())
}

func (s *Store) MarkChecked(ctx context.Context, id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	return db.New(s.beginner).MarkChecked(ctx, parsed, time.Now().UTC())
}

func (s *Store) GetHistory(ctx context.Context, identity model.Identity) ([]model.StructuralManifest, error) {
	rows, err := db.New(s.beginner).GetHistory(ctx, identity.RegionID, identity.SourceURL, identity.DataType)
	if err != nil {
		return nil, err
	}
	out := make([]model.StructuralManifest, 0, len(rows))
	for _, row := range rows {
		m, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func fromRow(row db.StructuralManifest) (model.StructuralManifest, error) {
	var rules model.ExtractionRules
	if err := json.Unmarshal(row.ExtractionRules, &rules); err != nil {
		return model.StructuralManifest{}, fmt.Errorf("decode extraction_rules: %w", err)
	}

	m := model.StructuralManifest{
		ID:              row.ID.String(),
		RegionID:        row.RegionID,
		SourceURL:       row.SourceURL,
		DataType:        row.DataType,
		Version:         int(row.Version),
		StructureHash:   row.StructureHash,
		PromptHash:      row.PromptHash,
		ExtractionRules: rules,
		Confidence:      row.Confidence,
		SuccessCount:    int(row.SuccessCount),
		FailureCount:    int(row.FailureCount),
		IsActive:        row.IsActive,
		CreatedAt:       row.CreatedAt,
	}
	if row.LlmProvider.Valid {
		m.LLMProvider = row.LlmProvider.String
	}
	if row.LlmModel.Valid {
		m.LLMModel = row.LlmModel.String
	}
	if row.LlmTokensUsed.Valid {
		m.LLMTokensUsed = int(row.LlmTokensUsed.Int32)
	}
	if row.AnalysisTimeMs.Valid {
		m.AnalysisTimeMs = row.AnalysisTimeMs.Int64
	}
	if row.LastUsedAt.Valid {
		t := row.LastUsedAt.Time
		m.LastUsedAt = &t
	}
	if row.LastCheckedAt.Valid {
		t := row.LastCheckedAt.Time
		m.LastCheckedAt = &t
	}
	return m, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
