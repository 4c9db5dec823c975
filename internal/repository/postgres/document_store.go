package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentStore implements domain.DocumentStore on a single jsonb table
type DocumentStore struct {
	pool *pgxpool.Pool
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

const documentColumns = "id, data, version, updated_at"

// ReadDocument retrieves a document by collection and id
func (s *DocumentStore) ReadDocument(ctx context.Context, collection, id string) (*domain.Document, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE collection = $1 AND id = $2",
		collection, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, storeError(err)
	}
	return doc, nil
}

// WriteDocument creates or updates a document. With MergeFields only the supplied
// top-level fields change (jsonb ||); with ReplaceDocument the data is overwritten.
func (s *DocumentStore) WriteDocument(ctx context.Context, collection, id string, fields map[string]any, opts domain.WriteOptions) (*domain.Document, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode document %s/%s: %w", collection, id, err)
	}

	merged := "documents.data || $3::jsonb"
	if opts.Merge == domain.ReplaceDocument {
		merged = "$3::jsonb"
	}

	var row pgx.Row
	switch {
	case opts.IfVersion == domain.VersionMustNotExist:
		row = s.pool.QueryRow(ctx, `
			INSERT INTO documents (collection, id, data, version, updated_at)
			VALUES ($1, $2, $3::jsonb, 1, NOW())
			ON CONFLICT (collection, id) DO NOTHING
			RETURNING `+documentColumns,
			collection, id, string(data))
	case opts.IfVersion > 0:
		row = s.pool.QueryRow(ctx, `
			UPDATE documents
			SET data = `+merged+`, version = documents.version + 1, updated_at = NOW()
			WHERE collection = $1 AND id = $2 AND version = $4
			RETURNING `+documentColumns,
			collection, id, string(data), opts.IfVersion)
	default:
		row = s.pool.QueryRow(ctx, `
			INSERT INTO documents (collection, id, data, version, updated_at)
			VALUES ($1, $2, $3::jsonb, 1, NOW())
			ON CONFLICT (collection, id) DO UPDATE
			SET data = `+merged+`, version = documents.version + 1, updated_at = NOW()
			RETURNING `+documentColumns,
			collection, id, string(data))
	}

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrConflict, collection, id)
		}
		return nil, storeError(err)
	}
	return doc, nil
}

// DeleteDocument removes a document; deleting an absent document is not an error
func (s *DocumentStore) DeleteDocument(ctx context.Context, collection, id string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE collection = $1 AND id = $2", collection, id)
	if err != nil {
		return storeError(err)
	}
	return nil
}

// QueryDocuments returns the documents of a collection matching every filter, ordered by id
func (s *DocumentStore) QueryDocuments(ctx context.Context, collection string, filters ...domain.QueryFilter) ([]*domain.Document, error) {
	query, args, err := buildQuery(collection, filters)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	docs := []*domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, storeError(err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err)
	}
	return docs, nil
}

func buildQuery(collection string, filters []domain.QueryFilter) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + documentColumns + " FROM documents WHERE collection = $1")
	args := []any{collection}

	for _, f := range filters {
		switch f.Op {
		case "==":
			contains, err := json.Marshal(map[string]any{f.Field: f.Value})
			if err != nil {
				return "", nil, fmt.Errorf("%w: filter on %s: %v", domain.ErrInvalidInput, f.Field, err)
			}
			args = append(args, string(contains))
			fmt.Fprintf(&sb, " AND data @> $%d::jsonb", len(args))
		case "<", "<=", ">", ">=":
			args = append(args, f.Field, f.Value)
			field, value := len(args)-1, len(args)
			if _, isString := f.Value.(string); isString {
				fmt.Fprintf(&sb, " AND data->>$%d %s $%d", field, f.Op, value)
			} else {
				fmt.Fprintf(&sb, " AND (data->>$%d)::numeric %s $%d", field, f.Op, value)
			}
		default:
			return "", nil, fmt.Errorf("%w: unsupported filter operator %q", domain.ErrInvalidInput, f.Op)
		}
	}
	sb.WriteString(" ORDER BY id")
	return sb.String(), args, nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var (
		id        string
		raw       []byte
		version   int64
		updatedAt time.Time
	)
	if err := row.Scan(&id, &raw, &version, &updatedAt); err != nil {
		return nil, err
	}
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &domain.Document{ID: id, Data: data, Version: version, UpdatedAt: updatedAt}, nil
}

// storeError maps driver errors onto domain errors. Anything that is not a
// server-side error is treated as the store being unreachable.
func storeError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres %s: %s", pgErr.Code, pgErr.Message)
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
