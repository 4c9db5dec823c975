package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/websocket"
)

// MockDocumentStore is an in-memory implementation of domain.DocumentStore.
// Stored data is deep-copied on every read and write, like a real store.
type MockDocumentStore struct {
	mu          sync.Mutex
	Collections map[string]map[string]*domain.Document
	Reads       int
	Writes      int

	ReadFn   func(collection, id string) (*domain.Document, error)
	WriteFn  func(collection, id string, fields map[string]any, opts domain.WriteOptions) (*domain.Document, error)
	DeleteFn func(collection, id string) error
	QueryFn  func(collection string, filters []domain.QueryFilter) ([]*domain.Document, error)
}

// NewMockDocumentStore creates a new MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{Collections: make(map[string]map[string]*domain.Document)}
}

// ReadDocument retrieves a document
func (m *MockDocumentStore) ReadDocument(ctx context.Context, collection, id string) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.ReadFn != nil {
		if doc, err := m.ReadFn(collection, id); doc != nil || err != nil {
			return doc, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++

	doc, ok := m.Collections[collection][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyDocument(doc), nil
}

// WriteDocument writes a document honoring merge strategy and version preconditions
func (m *MockDocumentStore) WriteDocument(ctx context.Context, collection, id string, fields map[string]any, opts domain.WriteOptions) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.WriteFn != nil {
		if doc, err := m.WriteFn(collection, id, fields, opts); doc != nil || err != nil {
			return doc, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Collections[collection] == nil {
		m.Collections[collection] = make(map[string]*domain.Document)
	}
	existing, exists := m.Collections[collection][id]

	switch {
	case opts.IfVersion == domain.VersionMustNotExist && exists:
		return nil, fmt.Errorf("%w: %s/%s exists", domain.ErrConflict, collection, id)
	case opts.IfVersion > 0 && (!exists || existing.Version != opts.IfVersion):
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrConflict, collection, id)
	}

	data := map[string]any{}
	var version int64
	if exists {
		version = existing.Version
		if opts.Merge == domain.MergeFields {
			data = copyData(existing.Data)
		}
	}
	for k, v := range copyData(fields) {
		data[k] = v
	}

	doc := &domain.Document{ID: id, Data: data, Version: version + 1, UpdatedAt: time.Now()}
	m.Collections[collection][id] = doc
	m.Writes++
	return copyDocument(doc), nil
}

// DeleteDocument removes a document
func (m *MockDocumentStore) DeleteDocument(ctx context.Context, collection, id string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(collection, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Collections[collection], id)
	return nil
}

// QueryDocuments returns documents matching every filter, ordered by id
func (m *MockDocumentStore) QueryDocuments(ctx context.Context, collection string, filters ...domain.QueryFilter) ([]*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.QueryFn != nil {
		return m.QueryFn(collection, filters)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := []*domain.Document{}
	for _, doc := range m.Collections[collection] {
		if matchesAll(doc.Data, filters) {
			docs = append(docs, copyDocument(doc))
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Version returns the stored version of a document, zero when absent
func (m *MockDocumentStore) Version(collection, id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.Collections[collection][id]; ok {
		return doc.Version
	}
	return 0
}

// Count returns the number of documents in a collection
func (m *MockDocumentStore) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Collections[collection])
}

func matchesAll(data map[string]any, filters []domain.QueryFilter) bool {
	for _, f := range filters {
		if !matches(data[f.Field], f.Op, normalize(f.Value)) {
			return false
		}
	}
	return true
}

func matches(actual any, op string, want any) bool {
	if op == "==" {
		return fmt.Sprint(actual) == fmt.Sprint(want)
	}
	a, aok := actual.(float64)
	w, wok := want.(float64)
	if aok && wok {
		switch op {
		case "<":
			return a < w
		case "<=":
			return a <= w
		case ">":
			return a > w
		case ">=":
			return a >= w
		}
		return false
	}
	as, aok := actual.(string)
	ws, wok := want.(string)
	if aok && wok {
		switch op {
		case "<":
			return as < ws
		case "<=":
			return as <= ws
		case ">":
			return as > ws
		case ">=":
			return as >= ws
		}
	}
	return false
}

func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func copyData(data map[string]any) map[string]any {
	out := map[string]any{}
	raw, err := json.Marshal(data)
	if err != nil {
		panic(fmt.Sprintf("testutil: document data not JSON encodable: %v", err))
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func copyDocument(doc *domain.Document) *domain.Document {
	return &domain.Document{ID: doc.ID, Data: copyData(doc.Data), Version: doc.Version, UpdatedAt: doc.UpdatedAt}
}

// MockRecalcRequester records recalculation requests and cancellations
type MockRecalcRequester struct {
	mu        sync.Mutex
	Requests  []domain.RecalcRequest
	Cancels   []string
	RequestFn func(req domain.RecalcRequest) error
}

// NewMockRecalcRequester creates a new MockRecalcRequester
func NewMockRecalcRequester() *MockRecalcRequester {
	return &MockRecalcRequester{}
}

// RequestRecalc records the request
func (m *MockRecalcRequester) RequestRecalc(ctx context.Context, req domain.RecalcRequest) error {
	if m.RequestFn != nil {
		if err := m.RequestFn(req); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	return nil
}

// CancelRecalc records the job id
func (m *MockRecalcRequester) CancelRecalc(ctx context.Context, budgetID, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancels = append(m.Cancels, jobID)
	return nil
}

// Cancelled returns a copy of the recorded cancellations
func (m *MockRecalcRequester) Cancelled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.Cancels...)
}

// Sent returns a copy of the recorded requests
func (m *MockRecalcRequester) Sent() []domain.RecalcRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RecalcRequest{}, m.Requests...)
}

// MockEventPublisher captures published websocket events
type MockEventPublisher struct {
	mu     sync.Mutex
	Events map[string][]websocket.Event
}

// NewMockEventPublisher creates a new MockEventPublisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{Events: make(map[string][]websocket.Event)}
}

// Publish records the event under its budget
func (m *MockEventPublisher) Publish(budgetID string, event websocket.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events[budgetID] = append(m.Events[budgetID], event)
}

// Types returns the event types published for a budget, in order
func (m *MockEventPublisher) Types(budgetID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.Events[budgetID]))
	for _, e := range m.Events[budgetID] {
		types = append(types, e.Type)
	}
	return types
}
