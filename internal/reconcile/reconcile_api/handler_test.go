package reconcile_api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/auth"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

type MockReconcileService struct {
	mock.Mock
}

func (m *MockReconcileService) ListCases(ctx context.Context, status string) ([]models.ReconciliationCase, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReconciliationCase), args.Error(1)
}

func (m *MockReconcileService) GetCase(ctx context.Context, id int64) (*models.ReconciliationCase, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReconciliationCase), args.Error(1)
}

func (m *MockReconcileService) ResolveCase(ctx context.Context, id int64, note, operator string) (*models.ReconciliationCase, error) {
	args := m.Called(ctx, id, note, operator)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReconciliationCase), args.Error(1)
}

func newRouter(svc ReconcileService, identity *auth.Identity) http.Handler {
	r := chi.NewRouter()
	if identity != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(auth.WithIdentity(req.Context(), *identity)))
			})
		})
	}
	h := &Handler{Service: svc, Logger: logger.NewNop()}
	h.RegisterRoutes(r)
	return r
}

func TestListCases(t *testing.T) {
	svc := new(MockReconcileService)
	svc.On("ListCases", mock.Anything, "OPEN").Return(nil, nil)

	rec := httptest.NewRecorder()
	newRouter(svc, &auth.Identity{UserID: "ops-1", Roles: []string{AdminRole}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/reconciliations?status=OPEN", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestResolveCase_RequiresAdmin(t *testing.T) {
	svc := new(MockReconcileService)

	rec := httptest.NewRecorder()
	newRouter(svc, &auth.Identity{UserID: "user-1"}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reconciliations/3/resolve", strings.NewReader(`{"note":"x"}`)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	svc.AssertNotCalled(t, "ResolveCase", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveCase(t *testing.T) {
	svc := new(MockReconcileService)
	svc.On("ResolveCase", mock.Anything, int64(3), "refund 8812", "ops-1").
		Return(&models.ReconciliationCase{ID: 3, Status: models.CaseResolved}, nil)
	svc.On("ResolveCase", mock.Anything, int64(4), "refund 8813", "ops-1").
		Return(nil, &apperrors.ConflictError{Resource: "reconciliation_case", ID: 4, Reason: "already_resolved"})

	admin := &auth.Identity{UserID: "ops-1", Roles: []string{AdminRole}}
	rec := httptest.NewRecorder()
	newRouter(svc, admin).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reconciliations/3/resolve", strings.NewReader(`{"note":"refund 8812"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	newRouter(svc, admin).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reconciliations/4/resolve", strings.NewReader(`{"note":"refund 8813"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
