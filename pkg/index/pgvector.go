package index

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/velding/newsrag/internal/models"
)

// PGIndex stores entries in Postgres with the pgvector extension. It is
// selected when a database URL is configured; Persist and Load are no-ops
// because Postgres is already durable.
type PGIndexConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

type PGIndex struct {
	config PGIndexConfig
	pool   *pgxpool.Pool
}

func NewPGIndex(config PGIndexConfig) (*PGIndex, error) {
	if config.TableName == "" {
		config.TableName = "articles"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	idx := &PGIndex{
		config: config,
		pool:   pool,
	}

	if err := idx.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return idx, nil
}

func (idx *PGIndex) initialize() error {
	ctx := context.Background()

	_, err := idx.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			ordinal INTEGER,
			content TEXT,
			embedding vector(%d)
		)`, idx.config.TableName, idx.config.VectorDim)

	_, err = idx.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		idx.config.TableName, idx.config.TableName)

	_, err = idx.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

// Build replaces all stored rows with the given entries in one
// transaction, matching the wholesale-overwrite semantics of the file
// index.
func (idx *PGIndex) Build(entries []models.Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("cannot build an index from zero entries")
	}

	for i, entry := range entries {
		if len(entry.Vector) != idx.config.VectorDim {
			return fmt.Errorf("entry %d has dimension %d, index dimension is %d",
				i, len(entry.Vector), idx.config.VectorDim)
		}
	}

	ctx := context.Background()

	tx, err := idx.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", idx.config.TableName)); err != nil {
		return fmt.Errorf("failed to clear table: %v", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, url, ordinal, content, embedding)
		VALUES ($1, $2, $3, $4, $5)`,
		idx.config.TableName)

	for _, entry := range entries {
		_, err := tx.Exec(ctx, stmt,
			entry.ID,
			entry.URL,
			entry.Ordinal,
			entry.Text,
			pgvector.NewVector(entry.Vector),
		)
		if err != nil {
			return fmt.Errorf("failed to insert entry: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// Persist is a no-op; rows are durable as soon as Build commits.
func (idx *PGIndex) Persist(string) error {
	return nil
}

// Load verifies that a previous Build left entries behind.
func (idx *PGIndex) Load(string) error {
	count, err := idx.count()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// Search returns the k nearest entries by cosine distance, best first.
func (idx *PGIndex) Search(query []float32, k int) ([]models.Scored, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be positive")
	}

	count, err := idx.count()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNotBuilt
	}

	ctx := context.Background()

	stmt := fmt.Sprintf(`
		SELECT id, url, ordinal, content, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		idx.config.TableName)

	rows, err := idx.pool.Query(ctx, stmt, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %v", err)
	}
	defer rows.Close()

	var results []models.Scored
	for rows.Next() {
		var scored models.Scored
		err := rows.Scan(
			&scored.ID,
			&scored.URL,
			&scored.Ordinal,
			&scored.Text,
			&scored.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		results = append(results, scored)
	}

	return results, rows.Err()
}

func (idx *PGIndex) count() (int, error) {
	var count int
	err := idx.pool.QueryRow(context.Background(),
		fmt.Sprintf("SELECT COUNT(*) FROM %s", idx.config.TableName)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %v", err)
	}
	return count, nil
}

func (idx *PGIndex) Close() {
	if idx.pool != nil {
		idx.pool.Close()
	}
}
