package handler

import (
	"strconv"

	"kidledger/internal/model"
	"kidledger/internal/service"
	"kidledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Ledger     *service.LedgerService
	Missions   *service.MissionService
	Users      *service.UserService
	Allowances *service.AllowanceService
	Dashboard  *service.DashboardService
	Outbox     *service.OutboxService
}

// Handler translates HTTP requests into service calls. Failures go through
// response.FromError so every error kind keeps one code and status.
type Handler struct {
	ledger     *service.LedgerService
	missions   *service.MissionService
	users      *service.UserService
	allowances *service.AllowanceService
	dashboard  *service.DashboardService
	outbox     *service.OutboxService
}

func NewHandler(svc Services) *Handler {
	return &Handler{
		ledger:     svc.Ledger,
		missions:   svc.Missions,
		users:      svc.Users,
		allowances: svc.Allowances,
		dashboard:  svc.Dashboard,
		outbox:     svc.Outbox,
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "invalid id "+c.Param("id"))
		return 0, false
	}
	return id, true
}

// actorID reads the acting user from X-Actor-ID. Identity is the caller's
// concern; the services only check the parent relation.
func actorID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.GetHeader(HeaderActorID), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, HeaderActorID+" header is required")
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		response.ParamError(c, "invalid "+key)
		return 0, false
	}
	return n, true
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ParamError(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// ============================================================
// Users
// ============================================================

// POST /api/v1/parents
func (h *Handler) CreateParent(c *gin.Context) {
	var req service.CreateParentRequest
	if !bind(c, &req) {
		return
	}
	user, err := h.users.CreateParent(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, user)
}

// POST /api/v1/parents/:id/children
func (h *Handler) CreateChild(c *gin.Context) {
	parentID, ok := pathID(c)
	if !ok {
		return
	}
	var req service.CreateChildRequest
	if !bind(c, &req) {
		return
	}
	child, err := h.users.CreateChild(c.Request.Context(), parentID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, child)
}

// GET /api/v1/parents/:id/children
func (h *Handler) ListChildren(c *gin.Context) {
	parentID, ok := pathID(c)
	if !ok {
		return
	}
	children, err := h.users.ListChildren(c.Request.Context(), parentID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, children)
}

// GET /api/v1/users/:id
func (h *Handler) GetUser(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, user)
}

// GET /api/v1/users?email=
func (h *Handler) FindUser(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		response.ParamError(c, "email query is required")
		return
	}
	user, err := h.users.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, user)
}

// GET /api/v1/users/:id/dashboard
func (h *Handler) GetDashboard(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	dash, err := h.dashboard.GetKidDashboard(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, dash)
}

// GET /api/v1/users/:id/activity?days=7
func (h *Handler) GetActivitySummary(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	summary, err := h.dashboard.GetActivitySummary(c.Request.Context(), userID, days)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, summary)
}

// ============================================================
// Allowances
// ============================================================

// POST /api/v1/allowances
func (h *Handler) CreateAllowance(c *gin.Context) {
	parentID, ok := actorID(c)
	if !ok {
		return
	}
	var req service.CreateAllowanceRequest
	if !bind(c, &req) {
		return
	}
	allowance, err := h.allowances.Create(c.Request.Context(), parentID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, allowance)
}

// DELETE /api/v1/allowances/:id
func (h *Handler) DeactivateAllowance(c *gin.Context) {
	parentID, ok := actorID(c)
	if !ok {
		return
	}
	allowanceID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.allowances.Deactivate(c.Request.Context(), parentID, allowanceID); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"id": allowanceID, "is_active": false})
}

// GET /api/v1/users/:id/allowances
func (h *Handler) ListAllowances(c *gin.Context) {
	childID, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.allowances.ListForChild(c.Request.Context(), childID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

// ============================================================
// Outbox
// ============================================================

// GET /api/v1/admin/outbox
func (h *Handler) GetOutboxBacklog(c *gin.Context) {
	backlog, err := h.outbox.Backlog(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, backlog)
}

// POST /api/v1/admin/outbox/requeue?limit=100
func (h *Handler) RequeueOutbox(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	n, err := h.outbox.RequeueFailed(c.Request.Context(), limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"requeued": n})
}

func statusParam(c *gin.Context) (model.MissionStatus, bool) {
	status := model.MissionStatus(c.Query("status"))
	switch status {
	case "", model.MissionStatusActive, model.MissionStatusCompleted, model.MissionStatusFailed, model.MissionStatusExpired:
		return status, true
	}
	response.ParamError(c, "invalid status "+string(status))
	return "", false
}
