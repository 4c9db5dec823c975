package domain

import (
	"context"
	"time"
)

// Collections used in the document store
const (
	CollectionBudgets = "budgets"
	CollectionMonths  = "months"
)

// MonthDocumentID is the document id of a month record
func MonthDocumentID(budgetID string, ym YearMonth) string {
	return budgetID + "_" + ym.Key()
}

// Document is a raw document as stored
type Document struct {
	ID        string
	Data      map[string]any
	Version   int64
	UpdatedAt time.Time
}

// MergeStrategy controls how a write combines with the stored document
type MergeStrategy int

const (
	// MergeFields replaces only the supplied top-level fields
	MergeFields MergeStrategy = iota
	// ReplaceDocument overwrites the whole document
	ReplaceDocument
)

// WriteOptions tune a document write
type WriteOptions struct {
	Merge MergeStrategy
	// IfVersion, when non-zero, makes the write fail with ErrConflict unless
	// the stored version matches. -1 requires the document to be absent.
	IfVersion int64
}

// VersionMustNotExist is the IfVersion value for create-only writes
const VersionMustNotExist int64 = -1

// QueryFilter is a single top-level field comparison
type QueryFilter struct {
	Field string
	Op    string // one of ==, <, <=, >, >=
	Value any
}

// DocumentStore is the durable store the engine reads and writes through.
// ReadDocument returns ErrNotFound for absent documents.
type DocumentStore interface {
	ReadDocument(ctx context.Context, collection, id string) (*Document, error)
	WriteDocument(ctx context.Context, collection, id string, fields map[string]any, opts WriteOptions) (*Document, error)
	DeleteDocument(ctx context.Context, collection, id string) error
	QueryDocuments(ctx context.Context, collection string, filters ...QueryFilter) ([]*Document, error)
}

// CacheUndo is the rollback record of a tentative cache write
type CacheUndo interface {
	// Commit drops the undo record
	Commit()
	// Rollback restores the value cached before the tentative write
	Rollback()
}

// LocalCache is the staleness-aware document cache. Entries older than the
// freshness window are misses.
type LocalCache interface {
	Get(key string) (*Document, bool)
	Set(key string, doc *Document)
	Invalidate(key string)
	SetTentative(key string, doc *Document) CacheUndo
}
