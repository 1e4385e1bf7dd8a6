package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kidledger/internal/apperr"
	"kidledger/internal/config"
	"kidledger/internal/infrastructure/lock"
	"kidledger/internal/logging"
	"kidledger/internal/model"
	"kidledger/internal/service"
	"kidledger/internal/testutil"
	"kidledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Kind    apperr.Kind     `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

type api struct {
	t      *testing.T
	db     *gorm.DB
	engine *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := config.Default()
	logger := logging.Discard()
	locker := lock.NewLocalLocker(5 * time.Second)

	ledger := service.NewLedgerService(db, locker, cfg, logger)
	missions := service.NewMissionService(db, locker, ledger, cfg, logger)
	h := NewHandler(Services{
		Ledger:     ledger,
		Missions:   missions,
		Users:      service.NewUserService(db, cfg, logger),
		Allowances: service.NewAllowanceService(db, ledger, cfg, logger),
		Dashboard:  service.NewDashboardService(db, ledger, missions),
		Outbox:     service.NewOutboxService(db, logger),
	})
	return &api{t: t, db: db, engine: SetupRouter(h, logger, gin.TestMode)}
}

func (a *api) do(method, path string, actor int64, body any) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor > 0 {
		req.Header.Set(HeaderActorID, fmt.Sprint(actor))
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (a *api) id(env envelope) int64 {
	a.t.Helper()
	var obj struct {
		ID int64 `json:"id"`
	}
	require.NoError(a.t, json.Unmarshal(env.Data, &obj))
	require.NotZero(a.t, obj.ID)
	return obj.ID
}

func (a *api) family() (parentID, childID int64) {
	a.t.Helper()
	w, env := a.do(http.MethodPost, "/api/v1/parents", 0, gin.H{"email": "p@example.com", "name": "Pat"})
	require.Equal(a.t, http.StatusCreated, w.Code, env.Message)
	parentID = a.id(env)

	w, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/parents/%d/children", parentID), 0, gin.H{"email": "c@example.com", "name": "Cam", "age": 9})
	require.Equal(a.t, http.StatusCreated, w.Code, env.Message)
	return parentID, a.id(env)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestDepositAndTransfer(t *testing.T) {
	a := newAPI(t)
	parentID, childID := a.family()

	w, _ := a.do(http.MethodPost, fmt.Sprintf("/api/v1/users/%d/deposits", childID), 0, gin.H{"amount": 1000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := a.do(http.MethodPost, fmt.Sprintf("/api/v1/users/%d/deposits", childID), parentID, gin.H{"amount": 1000, "description": "chores"})
	require.Equal(t, http.StatusCreated, w.Code, env.Message)

	w, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/users/%d/transfers", childID), 0, gin.H{"target": "savings", "amount": 400})
	require.Equal(t, http.StatusCreated, w.Code, env.Message)

	w, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/users/%d/transfers", childID), 0, gin.H{"target": "investment", "amount": 5000})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, response.CodeInsufficientBalance, env.Code)
	assert.Equal(t, apperr.KindInsufficientBalance, env.Kind)

	w, env = a.do(http.MethodGet, fmt.Sprintf("/api/v1/users/%d/balance", childID), 0, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var balance struct {
		RealMoney int64 `json:"real_money"`
		Savings   int64 `json:"savings"`
		TotalReal int64 `json:"total_real"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &balance))
	assert.Equal(t, int64(600), balance.RealMoney)
	assert.Equal(t, int64(400), balance.Savings)
	assert.Equal(t, int64(1000), balance.TotalReal)

	w, env = a.do(http.MethodGet, fmt.Sprintf("/api/v1/users/%d/transactions?limit=1", childID), 0, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var txs []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &txs))
	require.Len(t, txs, 1)
	assert.Equal(t, "transfer_to_savings", txs[0]["type"])
}

func TestMissionFlowOverHTTP(t *testing.T) {
	a := newAPI(t)
	_, childID := a.family()

	w, env := a.do(http.MethodPost, "/api/v1/missions", 0, gin.H{
		"title": "Save $5", "type": "save_money", "difficulty": "easy",
		"reward_coins": 50, "age_min": 6, "age_max": 12,
	})
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
	missionID := a.id(env)

	w, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/users/%d/missions", childID), 0, gin.H{"mission_id": missionID})
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
	instanceID := a.id(env)

	w, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/user-missions/%d/claim", instanceID), 0, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperr.KindNotYetCompleted, env.Kind)

	w, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/user-missions/%d/progress", instanceID), 0, gin.H{"progress": 100})
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	w, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/user-missions/%d/claim", instanceID), 0, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	w, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/user-missions/%d/claim", instanceID), 0, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.CodeAlreadyClaimed, env.Code)

	w, env = a.do(http.MethodGet, fmt.Sprintf("/api/v1/users/%d/dashboard", childID), 0, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dash service.KidDashboard
	require.NoError(t, json.Unmarshal(env.Data, &dash))
	assert.Equal(t, int64(50), dash.Balance.VirtualCoins)
	assert.Empty(t, dash.ActiveMissions)
}

func TestApprovalOverHTTP(t *testing.T) {
	a := newAPI(t)
	parentID, childID := a.family()

	_, env := a.do(http.MethodPost, fmt.Sprintf("/api/v1/users/%d/coins/award", childID), parentID, gin.H{"amount": 80, "description": "bonus"})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	w, env := a.do(http.MethodPost, fmt.Sprintf("/api/v1/users/%d/purchases", childID), 0, gin.H{"amount": 30, "description": "sticker"})
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
	transactionID := a.id(env)

	w, env = a.do(http.MethodGet, fmt.Sprintf("/api/v1/parents/%d/approvals", parentID), 0, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	assert.Len(t, pending, 1)

	w, _ = a.do(http.MethodPost, fmt.Sprintf("/api/v1/approvals/%d/resolve", transactionID), parentID, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/approvals/%d/resolve", transactionID), childID, gin.H{"approve": true})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperr.KindUnauthorized, env.Kind)

	w, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/approvals/%d/resolve", transactionID), parentID, gin.H{"approve": true})
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	_, env = a.do(http.MethodGet, fmt.Sprintf("/api/v1/users/%d/balance", childID), 0, nil)
	var balance struct {
		VirtualCoins int64 `json:"virtual_coins"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &balance))
	assert.Equal(t, int64(50), balance.VirtualCoins)
}

func TestNotFoundAndBadIDs(t *testing.T) {
	a := newAPI(t)

	w, env := a.do(http.MethodGet, "/api/v1/users/77/balance", 0, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeUserNotFound, env.Code)

	w, _ = a.do(http.MethodGet, "/api/v1/users/abc", 0, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(http.MethodGet, "/api/v1/users/1/missions?status=paused", 0, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLookupsOverHTTP(t *testing.T) {
	a := newAPI(t)
	parentID, childID := a.family()

	w, env := a.do(http.MethodPost, fmt.Sprintf("/api/v1/users/%d/deposits", childID), parentID, gin.H{"amount": 250})
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
	var created struct {
		TransactionNo string `json:"transaction_no"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.TransactionNo)

	w, env = a.do(http.MethodGet, "/api/v1/transactions/"+created.TransactionNo, 0, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var found struct {
		TransactionNo string `json:"transaction_no"`
		Amount        int64  `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &found))
	assert.Equal(t, created.TransactionNo, found.TransactionNo)
	assert.Equal(t, int64(250), found.Amount)

	w, env = a.do(http.MethodGet, "/api/v1/transactions/TXN-missing", 0, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeTransactionNotFound, env.Code)

	w, env = a.do(http.MethodGet, "/api/v1/users?email=C@Example.com", 0, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	assert.Equal(t, childID, a.id(env))

	w, env = a.do(http.MethodGet, "/api/v1/users?email=ghost@example.com", 0, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeUserNotFound, env.Code)

	w, _ = a.do(http.MethodGet, "/api/v1/users", 0, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOutboxAdminOverHTTP(t *testing.T) {
	a := newAPI(t)
	parentID, childID := a.family()

	w, env := a.do(http.MethodPost, fmt.Sprintf("/api/v1/users/%d/deposits", childID), parentID, gin.H{"amount": 100})
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
	require.NoError(t, a.db.Model(&model.OutboxMessage{}).
		Where("status = ?", model.OutboxStatusPending).
		Update("status", model.OutboxStatusFailed).Error)

	var backlog service.OutboxBacklog
	w, env = a.do(http.MethodGet, "/api/v1/admin/outbox", 0, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &backlog))
	assert.Zero(t, backlog.Pending)
	require.Positive(t, backlog.Failed)
	parked := backlog.Failed

	w, _ = a.do(http.MethodPost, "/api/v1/admin/outbox/requeue?limit=x", 0, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = a.do(http.MethodPost, "/api/v1/admin/outbox/requeue", 0, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var result struct {
		Requeued int64 `json:"requeued"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, parked, result.Requeued)

	_, env = a.do(http.MethodGet, "/api/v1/admin/outbox", 0, nil)
	require.NoError(t, json.Unmarshal(env.Data, &backlog))
	assert.Equal(t, parked, backlog.Pending)
	assert.Zero(t, backlog.Failed)
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware(), RecoveryMiddleware(logging.Discard()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
}
