package catalog_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/catalog"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) Table(ctx context.Context, eventID int64) (*catalog.Table, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Table), args.Error(1)
}

func (m *MockCatalogService) Configure(ctx context.Context, eventID int64, inputs []catalog.CategoryInput) (*catalog.Table, error) {
	args := m.Called(ctx, eventID, inputs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Table), args.Error(1)
}

func newRouter(svc CatalogService) http.Handler {
	r := chi.NewRouter()
	(&Handler{Service: svc, Logger: logger.NewNop()}).RegisterRoutes(r)
	return r
}

func TestGetCategories(t *testing.T) {
	table, err := catalog.NewTable(5, []models.CategoryTicket{
		{ID: 2, EventID: 5, Name: "STANDARD", Price: decimal.NewFromInt(100), MaxQuantity: 50, Status: models.CategoryActive},
		{ID: 1, EventID: 5, Name: "VIP", Price: decimal.NewFromInt(200), MaxQuantity: 10, Status: models.CategoryActive},
	})
	require.NoError(t, err)
	svc := new(MockCatalogService)
	svc.On("Table", mock.Anything, int64(5)).Return(table, nil)

	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/5/categories", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []models.CategoryTicket `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "VIP", resp.Data[0].Name)
}

func TestPutCategories_ValidationIs400(t *testing.T) {
	svc := new(MockCatalogService)
	svc.On("Configure", mock.Anything, int64(5), mock.MatchedBy(func(in []catalog.CategoryInput) bool {
		return len(in) == 1 && in[0].Name == "vip" && in[0].Price.Equal(decimal.NewFromInt(-1))
	})).Return(nil, apperrors.Validation("price", "category VIP has a negative price"))

	body := `{"categories":[{"name":"vip","price":"-1","max_quantity":10}]}`
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/events/5/categories", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertExpectations(t)
}

func TestGetCategories_BadEventID(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(new(MockCatalogService)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/x/categories", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
