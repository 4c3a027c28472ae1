package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"keysaccounting-api/internal/cache"
	"keysaccounting-api/internal/handler"
	"keysaccounting-api/internal/ledger"
	"keysaccounting-api/internal/middleware"
	"keysaccounting-api/internal/model"
	"keysaccounting-api/internal/notify"
	"keysaccounting-api/internal/pending"
	"keysaccounting-api/internal/repository"
	"keysaccounting-api/internal/resolve"
	"keysaccounting-api/internal/service"
	"keysaccounting-api/internal/sheet"
	"keysaccounting-api/pkg/apierror"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	c := cache.NewMemoryCache()
	t.Cleanup(func() { c.Close() })

	store := repository.NewStore(sheet.NewMemoryGrid(), c, repository.DefaultTTL()).WithLocation(time.UTC)
	require.NoError(t, store.Setup(ctx))

	for _, emp := range []model.Employee{
		{TelegramID: "100", FirstName: "Sam", LastName: "Guard", PhoneNumber: "+79000000100", Roles: []string{model.RoleSecurity}},
		{TelegramID: "1", FirstName: "Ann", LastName: "Lee", PhoneNumber: "+79000000001", Roles: []string{model.RoleUser}},
		{TelegramID: "9", FirstName: "Ada", LastName: "King", PhoneNumber: "+79000000009", Roles: []string{model.RoleAdmin}},
	} {
		require.NoError(t, store.AppendEmployee(ctx, emp))
	}
	for _, name := range []string{"K1", "K2"} {
		require.NoError(t, store.AppendKey(ctx, model.Key{Name: name, Count: 1}))
	}

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	l := ledger.New(store, clock)
	registry := pending.NewRegistry(clock)
	t.Cleanup(registry.Close)

	resolver := resolve.NewFuzzy()
	dir := service.NewDirectory(store, l, resolver)
	lending := service.NewLendingService(service.LendingDeps{
		Keys:       store,
		Ledger:     l,
		Registry:   registry,
		Directory:  dir,
		Resolver:   resolver,
		Notifier:   notify.LogNotifier{},
		RequestTTL: time.Hour,
	})

	r := New(Config{
		Handler:         handler.New("keys-accounting", "test", map[string]handler.Pinger{"store": store}),
		LendingHandler:  handler.NewLendingHandler(lending, 72*time.Hour),
		EmployeeHandler: handler.NewEmployeeHandler(dir),
		AdminHandler:    handler.NewAdminHandler(lending, store, "memory", false),
		Permissions:     dir,
		AuthMiddleware:  middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: []string{testAPIKey}}),
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, employee string, body interface{}) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	if employee != "" {
		req.Header.Set(middleware.EmployeeIDHeader, employee)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func TestLendingFlow(t *testing.T) {
	srv := newTestServer(t)

	code, env := call(t, srv, http.MethodPost, "/api/v1/requests", "1", handler.CreateRequestBody{Key: "K1", Comment: "audit"})
	require.Equal(t, http.StatusCreated, code)
	var req pending.Request
	require.NoError(t, json.Unmarshal(env.Data, &req))
	assert.Equal(t, "K1", req.KeyName)
	assert.Equal(t, "1", req.RequesterID)

	code, env = call(t, srv, http.MethodPost, "/api/v1/requests", "1", handler.CreateRequestBody{Key: "K1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, apierror.CodeRequestPending, env.Error.Code)

	code, env = call(t, srv, http.MethodGet, "/api/v1/requests", "100", nil)
	require.Equal(t, http.StatusOK, code)
	var list []pending.Request
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	code, env = call(t, srv, http.MethodPost, "/api/v1/requests/K1/approve", "100", handler.DecisionBody{RequestID: req.ID})
	require.Equal(t, http.StatusOK, code)
	var entry model.LoanEntry
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.Equal(t, "Ann", entry.EmployeeFirstName)
	assert.Equal(t, "audit", entry.Comment)
	assert.Nil(t, entry.TimeReturned)

	code, env = call(t, srv, http.MethodPost, "/api/v1/requests/K1/approve", "100", nil)
	assert.Equal(t, http.StatusGone, code)
	assert.Equal(t, apierror.CodeRequestLapsed, env.Error.Code)

	code, env = call(t, srv, http.MethodPost, "/api/v1/requests", "1", handler.CreateRequestBody{Key: "K1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, apierror.CodeKeyOnLoan, env.Error.Code)

	code, env = call(t, srv, http.MethodGet, "/api/v1/loans/outstanding", "100", nil)
	require.Equal(t, http.StatusOK, code)
	var outstanding []model.LoanEntry
	require.NoError(t, json.Unmarshal(env.Data, &outstanding))
	require.Len(t, outstanding, 1)
	assert.Equal(t, "K1", outstanding[0].KeyName)

	code, env = call(t, srv, http.MethodGet, "/api/v1/employees/me/keys", "1", nil)
	require.Equal(t, http.StatusOK, code)
	var mine []model.LoanEntry
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Len(t, mine, 1)

	code, env = call(t, srv, http.MethodPost, "/api/v1/keys/K1/return", "100", nil)
	require.Equal(t, http.StatusOK, code)
	var ret handler.ReturnResponse
	require.NoError(t, json.Unmarshal(env.Data, &ret))
	assert.True(t, ret.Returned)
	require.NotNil(t, ret.Entry)
	assert.NotNil(t, ret.Entry.TimeReturned)

	code, env = call(t, srv, http.MethodPost, "/api/v1/keys/K1/return", "100", nil)
	require.Equal(t, http.StatusOK, code)
	ret = handler.ReturnResponse{}
	require.NoError(t, json.Unmarshal(env.Data, &ret))
	assert.False(t, ret.Returned)
	assert.Equal(t, "nothing to return", ret.Message)

	code, env = call(t, srv, http.MethodGet, "/api/v1/keys/K1/history", "1", nil)
	require.Equal(t, http.StatusOK, code)
	var history []model.LoanEntry
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history, 1)

	code, env = call(t, srv, http.MethodGet, "/api/v1/employees/history?name="+url.QueryEscape("Ann Lee"), "100", nil)
	require.Equal(t, http.StatusOK, code)
	var eh handler.EmployeeHistoryResponse
	require.NoError(t, json.Unmarshal(env.Data, &eh))
	assert.Equal(t, "Ann", eh.Employee.FirstName)
	assert.Len(t, eh.Entries, 1)
}

func TestDenyRequest(t *testing.T) {
	srv := newTestServer(t)

	code, _ := call(t, srv, http.MethodPost, "/api/v1/requests", "1", handler.CreateRequestBody{Key: "K2"})
	require.Equal(t, http.StatusCreated, code)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/requests/K2/deny", "100", handler.DecisionBody{RequestID: "nope"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/requests/K2/deny", "100", nil)
	require.Equal(t, http.StatusOK, code)

	code, env := call(t, srv, http.MethodGet, "/api/v1/keys/K2", "1", nil)
	require.Equal(t, http.StatusOK, code)
	var state service.KeyState
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.False(t, state.OnLoan)
	assert.Nil(t, state.Pending)
}

func TestAccessControl(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/keys?q=K1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	for _, path := range []string{"/api/v1/health", "/api/status", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	code, _ := call(t, srv, http.MethodGet, "/api/v1/keys?q=K1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = call(t, srv, http.MethodGet, "/api/v1/keys?q=K1", "555", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/requests/K1/approve", "1", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, srv, http.MethodGet, "/api/v1/admin/stats", "100", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, srv, http.MethodGet, "/api/v1/admin/stats", "9", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = call(t, srv, http.MethodGet, "/api/v1/loans/overdue", "9", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRegisterAndFind(t *testing.T) {
	srv := newTestServer(t)

	code, env := call(t, srv, http.MethodPost, "/api/v1/employees", "42", handler.RegisterBody{
		FirstName: "Eve", LastName: "Stone", PhoneNumber: "8 (900) 123-45-67",
	})
	require.Equal(t, http.StatusCreated, code)
	var emp model.Employee
	require.NoError(t, json.Unmarshal(env.Data, &emp))
	assert.Equal(t, "+79001234567", emp.PhoneNumber)
	assert.Empty(t, emp.Roles)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/employees", "42", handler.RegisterBody{
		FirstName: "Eve", LastName: "Stone", PhoneNumber: "89001234567",
	})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/employees", "43", handler.RegisterBody{FirstName: "Eve"})
	assert.Equal(t, http.StatusBadRequest, code)

	// registered without roles: no access to user routes yet
	code, _ = call(t, srv, http.MethodGet, "/api/v1/keys?q=K1", "42", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = call(t, srv, http.MethodGet, "/api/v1/keys?q=k", "1", nil)
	require.Equal(t, http.StatusOK, code)
	var names []string
	require.NoError(t, json.Unmarshal(env.Data, &names))
	assert.ElementsMatch(t, []string{"K1", "K2"}, names)

	code, _ = call(t, srv, http.MethodGet, "/api/v1/keys", "1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
