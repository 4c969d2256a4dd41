package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/richardliu001/address-ledger/internal/config"
	"github.com/richardliu001/address-ledger/internal/logger"
	"github.com/richardliu001/address-ledger/internal/metrics"
	"github.com/richardliu001/address-ledger/internal/repo"
	"github.com/richardliu001/address-ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	alice = "0xAAA1111111111111111111111111111111111111"
	bob   = "0xBBB2222222222222222222222222222222222222"
)

func newTestRouter(t *testing.T, rl config.RateLimitConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	rdb, _ := redismock.NewClientMock()
	log, err := logger.NewLogger("error")
	require.NoError(t, err)
	repository := repo.NewRepository(db, rdb, nil, 0, log)
	require.NoError(t, repository.Migrate(context.Background()))

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	svc := service.NewLedgerService(repository, nil, m, log)
	info := BuildInfo{Name: "address-ledger", Version: "test", StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	return NewRouter(svc, rl, m, reg, info, log)
}

var roomyLimit = config.RateLimitConfig{RPS: 1000, Burst: 1000}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func txBody(from, to, amount, typ string) string {
	return fmt.Sprintf(`{"address_from":%q,"address_to":%q,"amount":%s,"transaction_type":%q}`, from, to, amount, typ)
}

func TestCreateTransaction_Created(t *testing.T) {
	r := newTestRouter(t, roomyLimit)

	w := do(r, http.MethodPost, "/api/transactions", txBody(bob, alice, `"100.50"`, "deposit"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.NotZero(t, got["id"])
	assert.Equal(t, "100.5", got["amount"])
	assert.Equal(t, "deposit", got["transaction_type"])
	assert.NotEmpty(t, got["created_at"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCreateTransaction_NumericAmount(t *testing.T) {
	r := newTestRouter(t, roomyLimit)
	w := do(r, http.MethodPost, "/api/transactions", txBody(bob, alice, `25`, "Withdrawal"))
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCreateTransaction_Violations(t *testing.T) {
	r := newTestRouter(t, roomyLimit)

	w := do(r, http.MethodPost, "/api/transactions", txBody("invalid", "invalid", `"0"`, "withdrawal"))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var got struct {
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []string{
		"Source and destination addresses cannot be the same.",
		"Invalid source address format.",
		"Invalid destination address format.",
		"Transaction amount must be greater than zero.",
	}, got.Errors)
	assert.Equal(t, got.Errors[0], got.Message)
}

func TestCreateTransaction_InsufficientBalance(t *testing.T) {
	r := newTestRouter(t, roomyLimit)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/transactions", txBody(bob, alice, `"50"`, "deposit")).Code)

	w := do(r, http.MethodPost, "/api/transactions", txBody(alice, bob, `"100"`, "withdrawal"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Insufficient balance")
}

func TestCreateTransaction_BadBody(t *testing.T) {
	r := newTestRouter(t, roomyLimit)
	for _, body := range []string{
		txBody(alice, bob, `"10"`, "payment"),
		`{"address_from":"a","address_to":"b","amount":"ten","transaction_type":"deposit"}`,
		`{"address_from":"a","address_to":"b","amount":"1"}`,
		`not json`,
	} {
		w := do(r, http.MethodPost, "/api/transactions", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestCreateTransaction_AmountBeyondColumnScale(t *testing.T) {
	r := newTestRouter(t, roomyLimit)
	for _, amount := range []string{`"0.0000000000000000001"`, `"100000000000000000000"`} {
		w := do(r, http.MethodPost, "/api/transactions", txBody(bob, alice, amount, "deposit"))
		assert.Equal(t, http.StatusBadRequest, w.Code, amount)
	}
	assert.Equal(t, "[]", do(r, http.MethodGet, "/api/transactions", "").Body.String())
}

func TestBalanceAndHistory(t *testing.T) {
	r := newTestRouter(t, roomyLimit)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/transactions", txBody(bob, alice, `"100"`, "deposit")).Code)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/transactions", txBody(alice, bob, `"40"`, "withdrawal")).Code)

	w := do(r, http.MethodGet, "/api/wallet/balance/"+alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"address":%q,"balance":"60"}`, alice), w.Body.String())

	w = do(r, http.MethodGet, "/api/transactions/"+alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	var hist []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	assert.Len(t, hist, 2)

	w = do(r, http.MethodGet, "/api/transactions?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 1)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/transactions?limit=-1", "").Code)
}

func TestEmptyHistoryIsArray(t *testing.T) {
	r := newTestRouter(t, roomyLimit)
	w := do(r, http.MethodGet, "/api/transactions/"+alice, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestAlive(t *testing.T) {
	r := newTestRouter(t, roomyLimit)
	w := do(r, http.MethodGet, "/api/alive", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "address-ledger Version: test\nSince: 2026-01-02 03:04:05", w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, roomyLimit)
	do(r, http.MethodGet, "/api/alive", "")
	w := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{handler="/api/alive",method="GET",status="2xx"} 1`)
}

func TestRateLimit(t *testing.T) {
	r := newTestRouter(t, config.RateLimitConfig{RPS: 1, Burst: 1})
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/alive", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/api/alive", "").Code)
}

func TestRequestIDPropagated(t *testing.T) {
	r := newTestRouter(t, roomyLimit)
	req := httptest.NewRequest(http.MethodGet, "/api/alive", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}
