package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-logr/logr"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
)

type sqliteDocument struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"uniqueIndex;not null"`
	DocumentType string `gorm:"not null"`
	Seq          int64  `gorm:"index;not null"`
	CreatedAt    time.Time
}

func (sqliteDocument) TableName() string { return "documents" }

type sqliteChunk struct {
	ID           uint   `gorm:"primaryKey"`
	DocumentName string `gorm:"uniqueIndex:idx_chunks_document_chunk;not null"`
	ChunkID      int    `gorm:"uniqueIndex:idx_chunks_document_chunk;not null"`
	Content      string `gorm:"not null"`
	Embedding    []byte
}

func (sqliteChunk) TableName() string { return "chunks" }

// SQLiteBackend keeps each knowledge base in its own database file,
// <dir>/<kb id>.db.
type SQLiteBackend struct {
	dir       string
	batchSize int
	log       logr.Logger

	mu  sync.Mutex
	dbs map[string]*gorm.DB
}

func NewSQLiteBackend(dir string, batchSize int, log logr.Logger) (*SQLiteBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if batchSize < 1 {
		batchSize = 100
	}
	return &SQLiteBackend{
		dir:       dir,
		batchSize: batchSize,
		log:       log.WithName("sqlite"),
		dbs:       make(map[string]*gorm.DB),
	}, nil
}

func (b *SQLiteBackend) path(kbID string) string {
	return filepath.Join(b.dir, kbID+".db")
}

// open returns the cached handle for kbID, opening the file when create is
// set or the file already exists.
func (b *SQLiteBackend) open(kbID string, create bool) (*gorm.DB, error) {
	if err := checkID(kbID); err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "sqlite", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if db, ok := b.dbs[kbID]; ok {
		return db, nil
	}

	path := b.path(kbID)
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if !create {
			return nil, apperr.Newf(apperr.KindNotFound, "sqlite", "knowledge base %q does not exist", kbID)
		}
	}

	dsn := path + "?_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One connection per file: writers are serialized by the index anyway.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&sqliteDocument{}, &sqliteChunk{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	b.dbs[kbID] = db
	b.log.V(1).Info("opened knowledge base", "kb", kbID, "path", path)
	return db, nil
}

func (b *SQLiteBackend) Exists(_ context.Context, kbID string) (bool, error) {
	if err := checkID(kbID); err != nil {
		return false, apperr.New(apperr.KindInvalidInput, "sqlite", err)
	}
	_, err := os.Stat(b.path(kbID))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (b *SQLiteBackend) Create(_ context.Context, kbID string) error {
	_, err := b.open(kbID, true)
	return err
}

func (b *SQLiteBackend) Load(ctx context.Context, kbID string) ([]models.StoredDocument, error) {
	db, err := b.open(kbID, false)
	if err != nil {
		return nil, err
	}
	db = db.WithContext(ctx)

	var docs []sqliteDocument
	if err := db.Order("seq").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	var chunks []sqliteChunk
	if err := db.Order("document_name, chunk_id").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	byName := make(map[string][]models.StoredChunk, len(docs))
	for _, c := range chunks {
		vec, err := bytesToFloats(c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %s/%d: %w", c.DocumentName, c.ChunkID, err)
		}
		byName[c.DocumentName] = append(byName[c.DocumentName], models.StoredChunk{
			ChunkID:   c.ChunkID,
			Content:   c.Content,
			Embedding: vec,
		})
	}

	out := make([]models.StoredDocument, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.StoredDocument{
			Name:         d.Name,
			DocumentType: d.DocumentType,
			Seq:          d.Seq,
			CreatedAt:    d.CreatedAt,
			Chunks:       byName[d.Name],
		})
	}
	return out, nil
}

func (b *SQLiteBackend) ReplaceDocument(ctx context.Context, kbID string, doc models.StoredDocument) error {
	db, err := b.open(kbID, false)
	if err != nil {
		return err
	}

	rows := make([]sqliteChunk, len(doc.Chunks))
	for i, c := range doc.Chunks {
		rows[i] = sqliteChunk{
			DocumentName: doc.Name,
			ChunkID:      c.ChunkID,
			Content:      c.Content,
			Embedding:    floatsToBytes(c.Embedding),
		}
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_name = ?", doc.Name).Delete(&sqliteChunk{}).Error; err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}
		if err := tx.Where("name = ?", doc.Name).Delete(&sqliteDocument{}).Error; err != nil {
			return fmt.Errorf("delete old document: %w", err)
		}
		row := sqliteDocument{
			Name:         doc.Name,
			DocumentType: doc.DocumentType,
			Seq:          doc.Seq,
			CreatedAt:    doc.CreatedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, b.batchSize).Error; err != nil {
				return fmt.Errorf("insert chunks: %w", err)
			}
		}
		return nil
	})
}

func (b *SQLiteBackend) DeleteDocument(ctx context.Context, kbID, name string) (int, error) {
	db, err := b.open(kbID, false)
	if err != nil {
		return 0, err
	}

	var removed int
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("name = ?", name).Delete(&sqliteDocument{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Newf(apperr.KindNotFound, "sqlite", "document %q not found", name)
		}
		res = tx.Where("document_name = ?", name).Delete(&sqliteChunk{})
		if res.Error != nil {
			return res.Error
		}
		removed = int(res.RowsAffected)
		return nil
	})
	return removed, err
}

func (b *SQLiteBackend) Clear(ctx context.Context, kbID string) (int, error) {
	db, err := b.open(kbID, false)
	if err != nil {
		return 0, err
	}

	var removed int
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		res := all.Delete(&sqliteChunk{})
		if res.Error != nil {
			return res.Error
		}
		removed = int(res.RowsAffected)
		return all.Delete(&sqliteDocument{}).Error
	})
	return removed, err
}

func (b *SQLiteBackend) Drop(_ context.Context, kbID string) error {
	if err := checkID(kbID); err != nil {
		return apperr.New(apperr.KindInvalidInput, "sqlite", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if db, ok := b.dbs[kbID]; ok {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		delete(b.dbs, kbID)
	}

	path := b.path(kbID)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.Newf(apperr.KindNotFound, "sqlite", "knowledge base %q does not exist", kbID)
		}
		return err
	}
	_ = os.Remove(path + "-journal")
	b.log.Info("dropped knowledge base", "kb", kbID)
	return nil
}

func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for id, db := range b.dbs {
		if sqlDB, err := db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
		delete(b.dbs, id)
	}
	return errors.Join(errs...)
}
