package handler

import (
	"net/http"

	"kidledger/internal/logging"

	"github.com/gin-gonic/gin"
)

// SetupRouter wires every route onto a fresh engine.
func SetupRouter(h *Handler, logger *logging.Logger, mode string) *gin.Engine {
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	httpLogger := logger.WithComponent(logging.ComponentHTTP)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(httpLogger))
	r.Use(LoggerMiddleware(httpLogger))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		parents := api.Group("/parents")
		{
			parents.POST("", h.CreateParent)
			parents.POST("/:id/children", h.CreateChild)
			parents.GET("/:id/children", h.ListChildren)
			parents.GET("/:id/approvals", h.ListPendingApprovals)
		}

		api.GET("/users", h.FindUser)
		api.GET("/transactions/:no", h.GetTransaction)

		users := api.Group("/users/:id")
		{
			users.GET("", h.GetUser)
			users.GET("/balance", h.GetBalance)
			users.GET("/transactions", h.ListTransactions)
			users.POST("/deposits", h.Deposit)
			users.POST("/transfers", h.Transfer)
			users.POST("/coins/award", h.AwardCoins)
			users.POST("/coins/spend", h.SpendCoins)
			users.POST("/purchases", h.RequestPurchase)
			users.GET("/missions", h.ListUserMissions)
			users.GET("/missions/available", h.ListAvailableMissions)
			users.POST("/missions", h.StartMission)
			users.GET("/allowances", h.ListAllowances)
			users.GET("/dashboard", h.GetDashboard)
			users.GET("/activity", h.GetActivitySummary)
		}

		api.POST("/approvals/:id/resolve", h.ResolveApproval)

		missions := api.Group("/missions")
		{
			missions.POST("", h.CreateMission)
			missions.GET("/:id", h.GetMission)
			missions.PATCH("/:id", h.SetMissionActive)
		}

		instances := api.Group("/user-missions/:id")
		{
			instances.POST("/progress", h.UpdateProgress)
			instances.POST("/claim", h.ClaimReward)
			instances.POST("/fail", h.FailMission)
		}

		allowances := api.Group("/allowances")
		{
			allowances.POST("", h.CreateAllowance)
			allowances.DELETE("/:id", h.DeactivateAllowance)
		}

		admin := api.Group("/admin")
		{
			admin.GET("/outbox", h.GetOutboxBacklog)
			admin.POST("/outbox/requeue", h.RequeueOutbox)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
