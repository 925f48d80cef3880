package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"

	"github.com/cloo-solutions/changichirp/internal/domain"
	"github.com/cloo-solutions/changichirp/internal/index"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txBeginner interface {
	dbtx
	Begin(ctx context.Context) (pgx.Tx, error)
}

// IndexRepository stores index generations in PostgreSQL, one row per chunk
// with its embedding in a pgvector column.
type IndexRepository struct {
	db txBeginner
}

// NewIndexRepository creates a new IndexRepository. pool is usually a *pgxpool.Pool.
func NewIndexRepository(pool txBeginner) *IndexRepository {
	return &IndexRepository{db: pool}
}

// Save inserts the generation and all its chunks and makes it the active
// generation, all in one transaction.
func (r *IndexRepository) Save(ctx context.Context, ix *index.Index) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.WithCause(domain.ErrStorageOperationFail, fmt.Errorf("failed to begin transaction: %w", err))
	}
	if err := r.insertGeneration(ctx, tx, ix); err != nil {
		_ = tx.Rollback(ctx)
		return domain.WithCause(domain.ErrStorageOperationFail, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.WithCause(domain.ErrStorageOperationFail, fmt.Errorf("failed to commit generation: %w", err))
	}

	m := ix.Manifest()
	log.WithFields(log.Fields{"generation": m.Generation, "count": m.Count}).Info("Published index generation")
	return nil
}

func (r *IndexRepository) insertGeneration(ctx context.Context, tx pgx.Tx, ix *index.Index) error {
	m := ix.Manifest()
	_, err := tx.Exec(ctx,
		`INSERT INTO index_generations (generation, model, dimensions, metric, chunk_count, built_at, active)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE)`,
		m.Generation, m.Model, m.Dimensions, string(m.Metric), m.Count, m.BuiltAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert generation: %w", err)
	}

	batch := &pgx.Batch{}
	for e := range ix.All() {
		batch.Queue(
			`INSERT INTO index_chunks
				(generation, chunk_id, source_url, title, content, position, token_count, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.Generation,
			e.Chunk.ID,
			e.Chunk.DocumentRef,
			e.Chunk.Title,
			e.Chunk.Text,
			e.Chunk.Position,
			e.Chunk.TokenCount,
			pgvector.NewVector(e.Vector),
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE index_generations SET active = FALSE WHERE active`); err != nil {
		return fmt.Errorf("failed to deactivate previous generation: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE index_generations SET active = TRUE WHERE generation = $1`, m.Generation); err != nil {
		return fmt.Errorf("failed to activate generation: %w", err)
	}
	return nil
}

// Current returns the active generation.
func (r *IndexRepository) Current(ctx context.Context) (string, error) {
	var gen string
	err := r.db.QueryRow(ctx, `SELECT generation FROM index_generations WHERE active`).Scan(&gen)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrIndexNotFound
	}
	if err != nil {
		return "", domain.WithCause(domain.ErrStorageOperationFail, err)
	}
	return gen, nil
}

// Load reads the active generation and all its chunks.
func (r *IndexRepository) Load(ctx context.Context) (*index.Index, error) {
	var m index.Manifest
	var metric string
	err := r.db.QueryRow(ctx,
		`SELECT generation, model, dimensions, metric, chunk_count, built_at
		 FROM index_generations WHERE active`,
	).Scan(&m.Generation, &m.Model, &m.Dimensions, &metric, &m.Count, &m.BuiltAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIndexNotFound
	}
	if err != nil {
		return nil, domain.WithCause(domain.ErrStorageOperationFail, fmt.Errorf("failed to read generation: %w", err))
	}
	m.Metric = index.Metric(metric)

	rows, err := r.db.Query(ctx,
		`SELECT chunk_id, source_url, title, content, position, token_count, embedding::text
		 FROM index_chunks WHERE generation = $1
		 ORDER BY chunk_id COLLATE "C"`,
		m.Generation,
	)
	if err != nil {
		return nil, domain.WithCause(domain.ErrStorageOperationFail, fmt.Errorf("failed to query chunks: %w", err))
	}
	defer rows.Close()

	entries := make([]index.Entry, 0, m.Count)
	for rows.Next() {
		var c domain.Chunk
		var raw string
		if err := rows.Scan(&c.ID, &c.DocumentRef, &c.Title, &c.Text, &c.Position, &c.TokenCount, &raw); err != nil {
			return nil, domain.WithCause(domain.ErrStorageOperationFail, fmt.Errorf("failed to scan chunk: %w", err))
		}
		var vec pgvector.Vector
		if err := vec.Scan(raw); err != nil {
			return nil, domain.WithCause(domain.ErrIndexCorrupt, fmt.Errorf("chunk %s: %w", c.ID, err))
		}
		entries = append(entries, index.Entry{Chunk: c, Vector: vec.Slice()})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WithCause(domain.ErrStorageOperationFail, err)
	}

	return index.Restore(m, entries)
}

// Prune deletes inactive generations, keeping the newest keep of them.
func (r *IndexRepository) Prune(ctx context.Context, keep int) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM index_generations
		 WHERE NOT active AND generation NOT IN (
			SELECT generation FROM index_generations WHERE NOT active
			ORDER BY built_at DESC LIMIT $1
		 )`,
		max(keep, 0),
	)
	if err != nil {
		return 0, domain.WithCause(domain.ErrStorageOperationFail, fmt.Errorf("failed to prune generations: %w", err))
	}
	return tag.RowsAffected(), nil
}
