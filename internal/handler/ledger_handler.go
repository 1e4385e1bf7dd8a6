package handler

import (
	"kidledger/pkg/response"

	"github.com/gin-gonic/gin"
)

type AmountRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type TransferRequest struct {
	Target string `json:"target" binding:"required,oneof=savings investment"`
	Amount int64  `json:"amount"`
}

type ResolveRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// GET /api/v1/users/:id/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	balance, err := h.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, balance)
}

// GET /api/v1/users/:id/transactions?limit=20
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	list, err := h.ledger.ListTransactions(c.Request.Context(), userID, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

// GET /api/v1/transactions/:no
func (h *Handler) GetTransaction(c *gin.Context) {
	trans, err := h.ledger.GetTransaction(c.Request.Context(), c.Param("no"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, trans)
}

// POST /api/v1/users/:id/deposits
func (h *Handler) Deposit(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	userID, ok := pathID(c)
	if !ok {
		return
	}
	var req AmountRequest
	if !bind(c, &req) {
		return
	}
	trans, err := h.ledger.Deposit(c.Request.Context(), actor, userID, req.Amount, req.Description)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, trans)
}

// POST /api/v1/users/:id/transfers
func (h *Handler) Transfer(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	var req TransferRequest
	if !bind(c, &req) {
		return
	}

	transfer := h.ledger.TransferToSavings
	if req.Target == "investment" {
		transfer = h.ledger.TransferToInvestment
	}
	trans, err := transfer(c.Request.Context(), userID, req.Amount)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, trans)
}

// POST /api/v1/users/:id/coins/award
func (h *Handler) AwardCoins(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	userID, ok := pathID(c)
	if !ok {
		return
	}
	var req AmountRequest
	if !bind(c, &req) {
		return
	}
	trans, err := h.ledger.AwardVirtualCoins(c.Request.Context(), actor, userID, req.Amount, req.Description)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, trans)
}

// POST /api/v1/users/:id/coins/spend
func (h *Handler) SpendCoins(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	var req AmountRequest
	if !bind(c, &req) {
		return
	}
	trans, err := h.ledger.SpendVirtualCoins(c.Request.Context(), userID, req.Amount, req.Description)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, trans)
}

// POST /api/v1/users/:id/purchases
func (h *Handler) RequestPurchase(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	var req AmountRequest
	if !bind(c, &req) {
		return
	}
	trans, err := h.ledger.RequestPurchase(c.Request.Context(), userID, req.Amount, req.Description)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, trans)
}

// GET /api/v1/parents/:id/approvals
func (h *Handler) ListPendingApprovals(c *gin.Context) {
	parentID, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.ledger.ListPendingApprovals(c.Request.Context(), parentID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

// POST /api/v1/approvals/:id/resolve
func (h *Handler) ResolveApproval(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	transactionID, ok := pathID(c)
	if !ok {
		return
	}
	var req ResolveRequest
	if !bind(c, &req) {
		return
	}
	trans, err := h.ledger.ResolveApproval(c.Request.Context(), actor, transactionID, *req.Approve)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, trans)
}
