package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/dafibh/envelope/envelope-backend/internal/cache"
	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/middleware"
	"github.com/dafibh/envelope/envelope-backend/internal/repository/document"
	"github.com/dafibh/envelope/envelope-backend/internal/service"
	"github.com/dafibh/envelope/envelope-backend/internal/testutil"
	"github.com/dafibh/envelope/envelope-backend/internal/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testBudgetID = "budget-1"

// tokenValidator accepts "<name>" tokens as user auth0|<name> and rejects "bad"
type tokenValidator struct{}

func (tokenValidator) ValidateToken(ctx context.Context, token string) (interface{}, error) {
	if token == "bad" {
		return nil, errors.New("invalid signature")
	}
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{Subject: "auth0|" + token},
	}, nil
}

// wsValidator is the websocket flavour of tokenValidator
type wsValidator struct{}

func (wsValidator) ValidateToken(ctx context.Context, token string) (string, error) {
	if token == "bad" {
		return "", websocket.ErrInvalidToken
	}
	return "auth0|" + token, nil
}

type testServer struct {
	e       *echo.Echo
	store   *testutil.MockDocumentStore
	budgets *document.BudgetRepository
	worker  *service.RecalcWorker
	queue   *testutil.MockRecalcRequester
	limiter *middleware.RateLimiter
}

type serverOptions struct {
	queue     bool
	rateLimit int
	burst     int
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	if opts.rateLimit == 0 {
		opts.rateLimit, opts.burst = 600, 100
	}

	store := testutil.NewMockDocumentStore()
	docCache := cache.NewDocumentCache(1000, time.Minute)
	budgets := document.NewBudgetRepository(store, docCache)
	months := document.NewMonthRepository(store, docCache)
	tracker := service.NewRecalcTracker(budgets)
	locker := service.NewBudgetLocker()
	logger := zerolog.Nop()

	cascade := service.NewCascadeService(budgets, months, tracker, service.NewCalculationService(), locker, logger)
	requester := testutil.NewMockRecalcRequester()
	worker := service.NewRecalcWorker(cascade, budgets, logger, service.DefaultRecalcWorkerConfig())

	var queue domain.RecalcQueue
	if opts.queue {
		queue = requester
	}

	s := &testServer{
		e:       echo.New(),
		store:   store,
		budgets: budgets,
		worker:  worker,
		queue:   requester,
		limiter: middleware.NewRateLimiterWithConfig(opts.rateLimit, opts.burst),
	}
	t.Cleanup(func() {
		s.limiter.Stop()
		worker.Stop()
	})

	RegisterRoutes(s.e, middleware.NewAuthMiddlewareWithValidator(tokenValidator{}), budgets, s.limiter, Handlers{
		Month:       NewMonthHandler(service.NewMonthService(budgets, months, tracker, cascade, locker, logger)),
		Transaction: NewTransactionHandler(service.NewTransactionService(budgets, months, tracker, locker, requester, logger)),
		Allocation: NewAllocationHandler(service.NewAllocationService(
			budgets, months, cache.NewDraftStore(100, time.Minute), tracker, cascade, locker, logger)),
		Recalc:    NewRecalcHandler(cascade, worker, queue),
		WebSocket: NewWebSocketHandler(websocket.NewHub(), wsValidator{}, budgets, testAllowedOrigins),
	})

	_, err := budgets.Create(context.Background(), &domain.Budget{
		ID:      testBudgetID,
		Name:    "Household",
		UserIDs: []string{"auth0|alice"},
		Accounts: map[string]*domain.Account{
			"checking": {ID: "checking", Nickname: "Checking", SortOrder: 1, OnBudget: true, IsActive: true},
		},
		AccountGroups: map[string]*domain.AccountGroup{},
		Categories: map[string]*domain.Category{
			"food": {ID: "food", Name: "Food", SortOrder: 1, DefaultMonthlyType: domain.AllocationTypeFixed},
			"rent": {ID: "rent", Name: "Rent", SortOrder: 2, DefaultMonthlyType: domain.AllocationTypeFixed},
		},
		CategoryGroups: map[string]*domain.CategoryGroup{},
		MonthMap:       map[string]bool{},
	})
	require.NoError(t, err)
	return s
}

// do sends a request as the given user token; an empty token sends no header
func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func budgetPath(parts ...string) string {
	return "/api/v1/budgets/" + testBudgetID + "/" + strings.Join(parts, "/")
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// seedJanuary stores January with 1000 income and 100 spent on food
func (s *testServer) seedJanuary(t *testing.T) {
	t.Helper()
	jan := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	rec := s.do(t, http.MethodPut, budgetPath("months", "2024", "1", "transactions"), "alice", domain.MonthTransactions{
		Income: []domain.Income{
			{ID: "pay", Date: jan(1), AccountID: "checking", Amount: decimal.NewFromInt(1000), Cleared: true},
		},
		Expenses: []domain.Expense{
			{ID: "groceries", Date: jan(10), AccountID: "checking", CategoryID: "food", Amount: decimal.NewFromInt(100), Cleared: true},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
