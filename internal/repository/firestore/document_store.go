package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// versionField holds the optimistic concurrency counter inside each document
const versionField = "_version"

// NewClient connects to Firestore. credentialsFile may be empty to use ambient credentials.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return client, nil
}

// DocumentStore implements domain.DocumentStore using Cloud Firestore
type DocumentStore struct {
	client *firestore.Client
}

// NewDocumentStore creates a new Firestore-backed document store
func NewDocumentStore(client *firestore.Client) *DocumentStore {
	return &DocumentStore{client: client}
}

// ReadDocument retrieves a document by collection and id
func (s *DocumentStore) ReadDocument(ctx context.Context, collection, id string) (*domain.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return toDocument(snap), nil
}

// WriteDocument writes a document inside a transaction so the version check and
// the write are atomic. MergeFields replaces only the supplied top-level fields.
func (s *DocumentStore) WriteDocument(ctx context.Context, collection, id string, fields map[string]any, opts domain.WriteOptions) (*domain.Document, error) {
	ref := s.client.Collection(collection).Doc(id)
	var written *domain.Document

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		written = nil
		current := map[string]any{}
		var version int64

		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			current = snap.Data()
			version = versionOf(current)
		case status.Code(err) == codes.NotFound:
		default:
			return err
		}

		exists := snap != nil && snap.Exists()
		if opts.IfVersion == domain.VersionMustNotExist && exists {
			return domain.ErrConflict
		}
		if opts.IfVersion > 0 && (!exists || version != opts.IfVersion) {
			return domain.ErrConflict
		}

		payload := make(map[string]any, len(fields)+1)
		for k, v := range fields {
			payload[k] = v
		}
		payload[versionField] = version + 1

		data := payload
		if opts.Merge == domain.MergeFields && exists {
			paths := make([]firestore.FieldPath, 0, len(payload))
			for k := range payload {
				paths = append(paths, firestore.FieldPath{k})
			}
			if err := tx.Set(ref, payload, firestore.Merge(paths...)); err != nil {
				return err
			}
			data = current
			for k, v := range payload {
				data[k] = v
			}
		} else if err := tx.Set(ref, payload); err != nil {
			return err
		}

		delete(data, versionField)
		written = &domain.Document{ID: id, Data: data, Version: version + 1}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrConflict, collection, id)
		}
		return nil, storeError(err)
	}
	return written, nil
}

// DeleteDocument removes a document; deleting an absent document is not an error
func (s *DocumentStore) DeleteDocument(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return storeError(err)
	}
	return nil
}

// QueryDocuments returns the documents of a collection matching every filter, ordered by id
func (s *DocumentStore) QueryDocuments(ctx context.Context, collection string, filters ...domain.QueryFilter) ([]*domain.Document, error) {
	query := s.client.Collection(collection).Query
	for _, f := range filters {
		query = query.Where(f.Field, f.Op, f.Value)
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, storeError(err)
	}

	docs := make([]*domain.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, toDocument(snap))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func toDocument(snap *firestore.DocumentSnapshot) *domain.Document {
	data := snap.Data()
	version := versionOf(data)
	delete(data, versionField)
	return &domain.Document{
		ID:        snap.Ref.ID,
		Data:      data,
		Version:   version,
		UpdatedAt: snap.UpdateTime,
	}
}

func versionOf(data map[string]any) int64 {
	switch v := data[versionField].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func storeError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return domain.ErrNotFound
	case codes.Aborted, codes.FailedPrecondition:
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}
