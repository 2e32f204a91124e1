// Package db holds hand-written, sqlc-shaped query wrappers over the
// structural_manifests table: a DBTX abstraction so callers can pass
// either a *sql.DB or a *sql.Tx, a Queries struct, and the Go row type
// each query returns.
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, letting Queries run
// inside or outside a transaction without duplicating query text.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries wraps a DBTX with the structural_manifests access methods.
type Queries struct {
	db DBTX
}

// New constructs a Queries bound to db (a *sql.DB or an in-flight *sql.Tx).
func New(dbtx DBTX) *Queries {
	return &Queries{db: dbtx}
}

// StructuralManifest is the row shape of the structural_manifests table.
type StructuralManifest struct {
	ID              uuid.UUID
	RegionID        string
	SourceURL       string
	DataType        string
	Version         int32
	StructureHash   string
	PromptHash      string
	ExtractionRules []byte
	Confidence      float64
	LlmProvider     sql.NullString
	LlmModel        sql.NullString
	LlmTokensUsed   sql.NullInt32
	AnalysisTimeMs  sql.NullInt64
	SuccessCount    int32
	FailureCount    int32
	IsActive        bool
	CreatedAt       time.Time
	LastUsedAt      sql.NullTime
	LastCheckedAt   sql.NullTime
}

const insertManifestSQL = `
INSERT INTO structural_manifests (
	id, region_id, source_url, data_type, version,
	structure_hash, prompt_hash, extraction_rules, confidence,
	llm_provider, llm_model, llm_tokens_used, analysis_time_ms,
	success_count, failure_count, is_active, created_at
) VALUES (
	$1, $2, $3, $4, $5,
	$6, $7, $8, $9,
	$10, $11, $12, $13,
	$14, $15, $16, $17
)`

// InsertManifestParams carries the columns needed to insert one new
// manifest version row.
type InsertManifestParams struct {
	ID              uuid.UUID
	RegionID        string
	SourceURL       string
	DataType        string
	Version         int32
	StructureHash   string
	PromptHash      string
	ExtractionRules []byte
	Confidence      float64
	LlmProvider     sql.NullString
	LlmModel        sql.NullString
	LlmTokensUsed   sql.NullInt32
	AnalysisTimeMs  sql.NullInt64
	CreatedAt       time.Time
}

// InsertManifest inserts a new active manifest row with zeroed counters.
func (q *Queries) InsertManifest(ctx context.Context, arg InsertManifestParams) error {
	_, err := q.db.ExecContext(ctx, insertManifestSQL,
		arg.ID, arg.RegionID, arg.SourceURL, arg.DataType, arg.Version,
		arg.StructureHash, arg.PromptHash, arg.ExtractionRules, arg.Confidence,
		arg.LlmProvider, arg.LlmModel, arg.LlmTokensUsed, arg.AnalysisTimeMs,
		0, 0, true, arg.CreatedAt,
	)
	return err
}

const deactivateManifestsSQL = `
UPDATE structural_manifests
SET is_active = false
WHERE region_id = $1 AND source_url = $2 AND data_type = $3 AND is_active = true`

// DeactivateManifestsForIdentity flips is_active off for every manifest
// currently active under the identity, returning how many rows changed
// (0 or 1 under the single-active-row invariant, never more).
func (q *Queries) DeactivateManifestsForIdentity(ctx context.Context, regionID, sourceURL, dataType string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deactivateManifestsSQL, regionID, sourceURL, dataType)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const maxVersionSQL = `
SELECT COALESCE(MAX(version), 0)
FROM structural_manifests
WHERE region_id = $1 AND source_url = $2 AND data_type = $3`

// MaxVersion returns the highest version number recorded for identity,
// or 0 if no manifest has ever been stored for it.
func (q *Queries) MaxVersion(ctx context.Context, regionID, sourceURL, dataType string) (int32, error) {
	var v int32
	err := q.db.QueryRowContext(ctx, maxVersionSQL, regionID, sourceURL, dataType).Scan(&v)
	return v, err
}

const manifestColumns = `
	id, region_id, source_url, data_type, version,
	structure_hash, prompt_hash, extraction_rules, confidence,
	llm_provider, llm_model, llm_tokens_used, analysis_time_ms,
	success_count, failure_count, is_active, created_at,
	last_used_at, last_checked_at`

const getActiveManifestSQL = `
SELECT ` + manifestColumns + `
FROM structural_manifests
WHERE region_id = $1 AND source_url = $2 AND data_type = $3 AND is_active = true
LIMIT 1`

// GetActiveManifest returns the single active manifest for identity, or
// sql.ErrNoRows if none exists.
func (q *Queries) GetActiveManifest(ctx context.Context, regionID, sourceURL, dataType string) (StructuralManifest, error) {
	row := q.db.QueryRowContext(ctx, getActiveManifestSQL, regionID, sourceURL, dataType)
	return scanManifest(row)
}

const getHistorySQL = `
SELECT ` + manifestColumns + `
FROM structural_manifests
WHERE region_id = $1 AND source_url = $2 AND data_type = $3
ORDER BY version DESC`

// GetHistory returns every version ever stored for identity, newest first.
func (q *Queries) GetHistory(ctx context.Context, regionID, sourceURL, dataType string) ([]StructuralManifest, error) {
	rows, err := q.db.QueryContext(ctx, getHistorySQL, regionID, sourceURL, dataType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StructuralManifest
	for rows.Next() {
		m, err := scanManifestRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanManifest(row scanner) (StructuralManifest, error) {
	return scanInto(row)
}

func scanManifestRows(rows *sql.Rows) (StructuralManifest, error) {
	return scanInto(rows)
}

func scanInto(s scanner) (StructuralManifest, error) {
	var m StructuralManifest
	err := s.Scan(
		&m.ID, &m.RegionID, &m.SourceURL, &m.DataType, &m.Version,
		&m.StructureHash, &m.PromptHash, &m.ExtractionRules, &m.Confidence,
		&m.LlmProvider, &m.LlmModel, &m.LlmTokensUsed, &m.AnalysisTimeMs,
		&m.SuccessCount, &m.FailureCount, &m.IsActive, &m.CreatedAt,
		&m.LastUsedAt, &m.LastCheckedAt,
	)
	return m, err
}

const incrementSuccessSQL = `UPDATE structural_manifests SET success_count = success_count + 1, last_used_at = $2 WHERE id = $1`

// IncrementSuccess bumps success_count and stamps last_used_at.
func (q *Queries) IncrementSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := q.db.ExecContext(ctx, incrementSuccessSQL, id, at)
	return err
}

const incrementFailureSQL = `UPDATE structural_manifests SET failure_count = failure_count + 1, last_used_at = $2 WHERE id = $1`

// IncrementFailure bumps failure_count and stamps last_used_at.
func (q *Queries) IncrementFailure(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := q.db.ExecContext(ctx, incrementFailureSQL, id, at)
	return err
}

const markCheckedSQL = `UPDATE structural_manifests SET last_checked_at = $2 WHERE id = $1`

// MarkChecked stamps last_checked_at, recording that the comparator ran
// against this manifest even when no re-extraction happened.
func (q *Queries) MarkChecked(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := q.db.ExecContext(ctx, markCheckedSQL, id, at)
	return err
}
