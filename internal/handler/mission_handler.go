package handler

import (
	"kidledger/internal/service"
	"kidledger/pkg/response"

	"github.com/gin-gonic/gin"
)

type StartMissionRequest struct {
	MissionID int64 `json:"mission_id" binding:"required"`
}

type ProgressRequest struct {
	Progress     *int   `json:"progress" binding:"required"`
	CurrentValue *int64 `json:"current_value"`
}

type MissionActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// POST /api/v1/missions
func (h *Handler) CreateMission(c *gin.Context) {
	var req service.CreateMissionRequest
	if !bind(c, &req) {
		return
	}
	mission, err := h.missions.CreateMission(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, mission)
}

// GET /api/v1/missions/:id
func (h *Handler) GetMission(c *gin.Context) {
	missionID, ok := pathID(c)
	if !ok {
		return
	}
	mission, err := h.missions.GetMission(c.Request.Context(), missionID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, mission)
}

// PATCH /api/v1/missions/:id
func (h *Handler) SetMissionActive(c *gin.Context) {
	missionID, ok := pathID(c)
	if !ok {
		return
	}
	var req MissionActiveRequest
	if !bind(c, &req) {
		return
	}
	mission, err := h.missions.SetMissionActive(c.Request.Context(), missionID, *req.IsActive)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, mission)
}

// POST /api/v1/users/:id/missions
func (h *Handler) StartMission(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	var req StartMissionRequest
	if !bind(c, &req) {
		return
	}
	instance, err := h.missions.StartMission(c.Request.Context(), userID, req.MissionID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, instance)
}

// GET /api/v1/users/:id/missions?status=active
func (h *Handler) ListUserMissions(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	status, ok := statusParam(c)
	if !ok {
		return
	}
	list, err := h.missions.ListUserMissions(c.Request.Context(), userID, status)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

// GET /api/v1/users/:id/missions/available
func (h *Handler) ListAvailableMissions(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.missions.ListAvailableMissions(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

// POST /api/v1/user-missions/:id/progress
func (h *Handler) UpdateProgress(c *gin.Context) {
	instanceID, ok := pathID(c)
	if !ok {
		return
	}
	var req ProgressRequest
	if !bind(c, &req) {
		return
	}
	instance, err := h.missions.UpdateProgress(c.Request.Context(), instanceID, *req.Progress, req.CurrentValue)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, instance)
}

// POST /api/v1/user-missions/:id/claim
func (h *Handler) ClaimReward(c *gin.Context) {
	instanceID, ok := pathID(c)
	if !ok {
		return
	}
	trans, err := h.missions.ClaimReward(c.Request.Context(), instanceID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, trans)
}

// POST /api/v1/user-missions/:id/fail
func (h *Handler) FailMission(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}
	instanceID, ok := pathID(c)
	if !ok {
		return
	}
	instance, err := h.missions.FailMission(c.Request.Context(), actor, instanceID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, instance)
}
