package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
)

type PostgresConfig struct {
	ConnString string
	VectorDim  int
	BatchSize  int
}

// PostgresBackend stores every knowledge base in three shared tables keyed
// by kb_id. Embeddings live in a pgvector column.
type PostgresBackend struct {
	config PostgresConfig
	pool   *pgxpool.Pool
	psql   squirrel.StatementBuilderType
	log    logr.Logger
}

func NewPostgresBackend(ctx context.Context, config PostgresConfig, log logr.Logger) (*PostgresBackend, error) {
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &PostgresBackend{
		config: config,
		pool:   pool,
		psql:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		log:    log.WithName("postgres"),
	}

	if err := b.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return b, nil
}

func (b *PostgresBackend) initialize(ctx context.Context) error {
	// Enable pgvector extension
	if _, err := b.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS kb_registry (
			kb_id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS kb_documents (
			kb_id TEXT NOT NULL REFERENCES kb_registry(kb_id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			document_type TEXT NOT NULL,
			seq BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (kb_id, name)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS kb_chunks (
			kb_id TEXT NOT NULL,
			document_name TEXT NOT NULL,
			chunk_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			PRIMARY KEY (kb_id, document_name, chunk_id),
			FOREIGN KEY (kb_id, document_name) REFERENCES kb_documents(kb_id, name) ON DELETE CASCADE
		)`, b.config.VectorDim),
	}
	for _, stmt := range statements {
		if _, err := b.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (b *PostgresBackend) Exists(ctx context.Context, kbID string) (bool, error) {
	sql, args, err := b.psql.Select("1").From("kb_registry").Where(squirrel.Eq{"kb_id": kbID}).ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = b.pool.QueryRow(ctx, sql, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (b *PostgresBackend) Create(ctx context.Context, kbID string) error {
	if err := checkID(kbID); err != nil {
		return apperr.New(apperr.KindInvalidInput, "postgres", err)
	}
	sql, args, err := b.psql.Insert("kb_registry").
		Columns("kb_id").
		Values(kbID).
		Suffix("ON CONFLICT (kb_id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, sql, args...)
	return err
}

func (b *PostgresBackend) Load(ctx context.Context, kbID string) ([]models.StoredDocument, error) {
	exists, err := b.Exists(ctx, kbID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.Newf(apperr.KindNotFound, "postgres", "knowledge base %q does not exist", kbID)
	}

	sql, args, err := b.psql.Select("name", "document_type", "seq", "created_at").
		From("kb_documents").
		Where(squirrel.Eq{"kb_id": kbID}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	var docs []models.StoredDocument
	index := make(map[string]int)
	for rows.Next() {
		var d models.StoredDocument
		if err := rows.Scan(&d.Name, &d.DocumentType, &d.Seq, &d.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		index[d.Name] = len(docs)
		docs = append(docs, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sql, args, err = b.psql.Select("document_name", "chunk_id", "content", "embedding").
		From("kb_chunks").
		Where(squirrel.Eq{"kb_id": kbID}).
		OrderBy("document_name", "chunk_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err = b.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name      string
			c         models.StoredChunk
			embedding pgvector.Vector
		)
		if err := rows.Scan(&name, &c.ChunkID, &c.Content, &embedding); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Embedding = embedding.Slice()
		i, ok := index[name]
		if !ok {
			continue
		}
		docs[i].Chunks = append(docs[i].Chunks, c)
	}
	return docs, rows.Err()
}

func (b *PostgresBackend) ReplaceDocument(ctx context.Context, kbID string, doc models.StoredDocument) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Chunks go with the document through ON DELETE CASCADE.
	sql, args, err := b.psql.Delete("kb_documents").
		Where(squirrel.Eq{"kb_id": kbID, "name": doc.Name}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to delete old document: %w", err)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	sql, args, err = b.psql.Insert("kb_documents").
		Columns("kb_id", "name", "document_type", "seq", "created_at").
		Values(kbID, doc.Name, doc.DocumentType, doc.Seq, createdAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	for start := 0; start < len(doc.Chunks); start += b.config.BatchSize {
		end := start + b.config.BatchSize
		if end > len(doc.Chunks) {
			end = len(doc.Chunks)
		}
		insert := b.psql.Insert("kb_chunks").Columns("kb_id", "document_name", "chunk_id", "content", "embedding")
		for _, c := range doc.Chunks[start:end] {
			insert = insert.Values(kbID, doc.Name, c.ChunkID, c.Content, pgvector.NewVector(c.Embedding))
		}
		sql, args, err := insert.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (b *PostgresBackend) DeleteDocument(ctx context.Context, kbID, name string) (int, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sql, args, err := b.psql.Delete("kb_chunks").Where(squirrel.Eq{"kb_id": kbID, "document_name": name}).ToSql()
	if err != nil {
		return 0, err
	}
	chunks, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}

	sql, args, err = b.psql.Delete("kb_documents").Where(squirrel.Eq{"kb_id": kbID, "name": name}).ToSql()
	if err != nil {
		return 0, err
	}
	docs, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document: %w", err)
	}
	if docs.RowsAffected() == 0 {
		return 0, apperr.Newf(apperr.KindNotFound, "postgres", "document %q not found", name)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return int(chunks.RowsAffected()), nil
}

func (b *PostgresBackend) Clear(ctx context.Context, kbID string) (int, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sql, args, err := b.psql.Delete("kb_chunks").Where(squirrel.Eq{"kb_id": kbID}).ToSql()
	if err != nil {
		return 0, err
	}
	chunks, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}

	sql, args, err = b.psql.Delete("kb_documents").Where(squirrel.Eq{"kb_id": kbID}).ToSql()
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return int(chunks.RowsAffected()), nil
}

func (b *PostgresBackend) Drop(ctx context.Context, kbID string) error {
	sql, args, err := b.psql.Delete("kb_registry").Where(squirrel.Eq{"kb_id": kbID}).ToSql()
	if err != nil {
		return err
	}
	tag, err := b.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to drop knowledge base: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.KindNotFound, "postgres", "knowledge base %q does not exist", kbID)
	}
	b.log.Info("dropped knowledge base", "kb", kbID)
	return nil
}

func (b *PostgresBackend) Close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	return nil
}
