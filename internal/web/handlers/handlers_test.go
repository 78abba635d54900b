package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jredh-dev/foodloop/internal/auth"
	"github.com/jredh-dev/foodloop/internal/catalog"
	"github.com/jredh-dev/foodloop/internal/database"
	"github.com/jredh-dev/foodloop/internal/demand"
	"github.com/jredh-dev/foodloop/internal/lifecycle"
	"github.com/jredh-dev/foodloop/internal/oracle"
	"github.com/jredh-dev/foodloop/internal/requests"
	"github.com/jredh-dev/foodloop/pkg/models"
)

var now = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

const shelfLifeAnswer = "best_before:2026-03-11T12:00:00, expires_at:2026-03-31T12:00:00"

type testServer struct {
	router http.Handler
	tokens *auth.Service
	db     *database.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := func() time.Time { return now }
	gen := oracle.GeneratorFunc(func(_ context.Context, model, _ string) (string, error) {
		if model == "forecast" {
			return "Rice is in demand.", nil
		}
		return shelfLifeAnswer, nil
	})
	log := logr.Discard()

	h := New(
		catalog.New(db, oracle.NewShelfLife(gen, "shelf", time.Second), nil, log, catalog.Options{DefaultLocale: "India", Now: clock}),
		lifecycle.New(db, nil, log, clock),
		requests.New(db, nil, log, clock),
		demand.New(db.Queries(), oracle.NewNarrator(gen, "forecast", time.Second), log, demand.Options{Now: clock}),
		auth.NewRegistry(),
		log,
	)
	tokens := auth.NewService("test-signing-key", "foodloop", nil)

	r := chi.NewRouter()
	h.Mount(r, AuthMiddleware(tokens, db.Queries(), log, clock))
	return &testServer{router: r, tokens: tokens, db: db}
}

func (s *testServer) token(t *testing.T, uid, role string) string {
	t.Helper()
	tok, err := s.tokens.GenerateToken(auth.Principal{
		ID: uid, Email: uid + "@example.org", Roles: []string{role}, City: "Pune", Pincode: "411001", Contact: "555-" + uid,
	}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, token, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "", http.MethodGet, "/api/retailer/inventory", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, "not-a-token", http.MethodGet, "/api/retailer/inventory", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, s.token(t, "n1", models.RoleNgo), http.MethodGet, "/api/retailer/inventory", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, s.token(t, "boss", models.RoleAdmin), http.MethodGet, "/api/retailer/inventory", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMirrorsOwner(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, s.token(t, "r1", models.RoleRetailer), http.MethodGet, "/api/retailer/inventory", nil)
	require.Equal(t, http.StatusOK, w.Code)

	o, err := s.db.Queries().OwnerByID(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "411001", o.Pincode)
	assert.Equal(t, "r1@example.org", o.Email)
}

func TestAddStockAndSell(t *testing.T) {
	s := newTestServer(t)
	r1 := s.token(t, "r1", models.RoleRetailer)
	r2 := s.token(t, "r2", models.RoleRetailer)

	w := s.do(t, r1, http.MethodPost, "/api/retailer/inventory", map[string]interface{}{"name": "Rice", "quantity": "5"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created itemResp
	decode(t, w, &created)
	assert.Equal(t, "Rice", created.Name)
	assert.Equal(t, models.FoodStatusSelling, created.Status)

	// A second retailer joins the same food.
	w = s.do(t, r2, http.MethodPost, "/api/retailer/inventory", map[string]interface{}{"name": "rice", "quantity": 3})
	require.Equal(t, http.StatusCreated, w.Code)
	var linked itemResp
	decode(t, w, &linked)
	assert.Equal(t, created.FoodID, linked.FoodID)
	assert.True(t, linked.Quantity.Equal(decimal.NewFromInt(8)))

	// Same owner again merges without a new link.
	w = s.do(t, r1, http.MethodPost, "/api/retailer/inventory", map[string]interface{}{"name": "RICE", "quantity": "2"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, r1, http.MethodPost, fmt.Sprintf("/api/retailer/inventory/%d/sell", created.ID), map[string]interface{}{"quantity": "4"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sold struct {
		Message   string          `json:"message"`
		Remaining decimal.Decimal `json:"remaining_quantity"`
	}
	decode(t, w, &sold)
	assert.Equal(t, "Sold 4 of Rice", sold.Message)
	assert.True(t, sold.Remaining.Equal(decimal.NewFromInt(6)))

	w = s.do(t, r1, http.MethodPost, fmt.Sprintf("/api/retailer/inventory/%d/sell", created.ID), map[string]interface{}{"quantity": "7"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, r2, http.MethodPost, fmt.Sprintf("/api/retailer/inventory/%d/sell", created.ID), map[string]interface{}{"quantity": "1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, r1, http.MethodGet, "/api/retailer/inventory", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var inv []itemResp
	decode(t, w, &inv)
	require.Len(t, inv, 1)
	assert.True(t, inv[0].Quantity.Equal(decimal.NewFromInt(6)))
}

func TestAddStockValidation(t *testing.T) {
	s := newTestServer(t)
	r1 := s.token(t, "r1", models.RoleRetailer)

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"bad json", "{", http.StatusBadRequest},
		{"missing quantity", map[string]interface{}{"name": "Rice"}, http.StatusUnprocessableEntity},
		{"missing name", map[string]interface{}{"quantity": "1"}, http.StatusUnprocessableEntity},
		{"zero quantity", map[string]interface{}{"name": "Rice", "quantity": "0"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, r1, http.MethodPost, "/api/retailer/inventory", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := s.do(t, r1, http.MethodPost, "/api/retailer/inventory/abc/sell", map[string]interface{}{"quantity": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, r1, http.MethodDelete, "/api/retailer/inventory/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListingAndClaimFlow(t *testing.T) {
	s := newTestServer(t)
	r1 := s.token(t, "r1", models.RoleRetailer)
	ngo := s.token(t, "n1", models.RoleNgo)
	farmer := s.token(t, "f1", models.RoleFarmer)

	w := s.do(t, r1, http.MethodPost, "/api/retailer/inventory", map[string]interface{}{"name": "Rice", "quantity": "5"})
	require.Equal(t, http.StatusCreated, w.Code)
	var item itemResp
	decode(t, w, &item)

	// Nothing listed yet.
	w = s.do(t, ngo, http.MethodGet, "/api/ngo/listings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = s.do(t, r1, http.MethodPost, fmt.Sprintf("/api/retailer/inventory/%d/list", item.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, ngo, http.MethodGet, "/api/ngo/listings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listings []models.Listing
	decode(t, w, &listings)
	require.Len(t, listings, 1)
	assert.Equal(t, "555-r1", listings[0].RetailerContact)

	w = s.do(t, ngo, http.MethodPost, "/api/ngo/requests", map[string]interface{}{
		"inventory_item_id": item.ID, "quantity": "2", "pickup_date": "2026-03-02",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Request models.FoodRequest `json:"request"`
	}
	decode(t, w, &created)
	assert.Equal(t, models.RequestStatusPending, created.Request.Status)

	w = s.do(t, ngo, http.MethodPost, "/api/ngo/requests", map[string]interface{}{"inventory_item_id": item.ID})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, r1, http.MethodGet, "/api/retailer/requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var incoming []models.RequestView
	decode(t, w, &incoming)
	require.Len(t, incoming, 1)
	assert.Equal(t, "Rice", incoming[0].FoodName)

	w = s.do(t, r1, http.MethodPost, fmt.Sprintf("/api/retailer/requests/%d/approve", created.Request.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, r1, http.MethodPost, fmt.Sprintf("/api/retailer/requests/%d/ignore", created.Request.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, ngo, http.MethodGet, "/api/ngo/requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []models.RequestView
	decode(t, w, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, models.RequestStatusApproved, mine[0].Request.Status)

	w = s.do(t, farmer, http.MethodGet, "/api/farmer/forecast", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var f demand.Forecast
	decode(t, w, &f)
	assert.Equal(t, demand.SourceFullHistory, f.DataSource)
	assert.Equal(t, "Rice is in demand.", f.Summary)
	require.Len(t, f.TopItems, 1)
	assert.Equal(t, "Rice", f.TopItems[0].Name)
}

func TestNotifications(t *testing.T) {
	s := newTestServer(t)
	r1 := s.token(t, "r1", models.RoleRetailer)

	w := s.do(t, r1, http.MethodGet, "/api/retailer/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	// A best-before date in the past, written directly.
	food := &models.Food{
		Name: "Milk", NameKey: "milk", Quantity: decimal.NewFromInt(2),
		BestBefore: now.AddDate(0, 0, -1), ExpiresAt: now.AddDate(0, 0, 10),
		Status: models.FoodStatusSelling, CreatedAt: now,
	}
	q := s.db.Queries()
	require.NoError(t, q.CreateFood(context.Background(), food))
	item := &models.InventoryItem{OwnerID: "r1", FoodID: food.ID, CreatedAt: now}
	require.NoError(t, q.CreateItem(context.Background(), item))

	w = s.do(t, r1, http.MethodGet, "/api/retailer/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var notes []lifecycle.Notification
	decode(t, w, &notes)
	require.Len(t, notes, 1)
	assert.Equal(t, item.ID, notes[0].ItemID)

	w = s.do(t, r1, http.MethodPost, fmt.Sprintf("/api/retailer/inventory/%d/ignore", item.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCapabilities(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, s.token(t, "f1", models.RoleFarmer), http.MethodGet, "/api/capabilities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var caps []auth.Capability
	decode(t, w, &caps)
	require.NotEmpty(t, caps)
	for _, c := range caps {
		assert.Equal(t, models.RoleFarmer, c.Role)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrMissingField, http.StatusUnprocessableEntity},
		{models.ErrInsufficientStock, http.StatusUnprocessableEntity},
		{models.ErrExpired, http.StatusUnprocessableEntity},
		{models.ErrInvalidEstimate, http.StatusUnprocessableEntity},
		{models.ErrNoStock, http.StatusNotFound},
		{models.ErrUnauthorized, http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", models.ErrConflict), http.StatusConflict},
		{models.ErrOracleUnavailable, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}
