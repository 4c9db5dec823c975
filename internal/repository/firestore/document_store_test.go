package firestore

import (
	"context"
	"errors"
	"testing"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStoreError(t *testing.T) {
	assert.ErrorIs(t, storeError(status.Error(codes.NotFound, "missing")), domain.ErrNotFound)
	assert.ErrorIs(t, storeError(status.Error(codes.Aborted, "contention")), domain.ErrConflict)
	assert.ErrorIs(t, storeError(status.Error(codes.Unavailable, "down")), domain.ErrStoreUnavailable)
	assert.ErrorIs(t, storeError(status.Error(codes.DeadlineExceeded, "slow")), domain.ErrStoreUnavailable)

	plain := errors.New("boom")
	assert.Equal(t, plain, storeError(plain))
	assert.ErrorIs(t, storeError(context.Canceled), context.Canceled)
}

func TestVersionOf(t *testing.T) {
	assert.Equal(t, int64(3), versionOf(map[string]any{versionField: int64(3)}))
	assert.Equal(t, int64(4), versionOf(map[string]any{versionField: float64(4)}))
	assert.Equal(t, int64(0), versionOf(map[string]any{}))
}
