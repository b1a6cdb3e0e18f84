package handlers

import "github.com/gin-gonic/gin"

// SetupRoutes mounts every endpoint of the call-support service on router.
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	auth := router.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
	}

	api := router.Group("/api")
	{
		api.GET("/client-config", h.GetClientConfig)
		api.GET("/vapid-public-key", h.GetVAPIDPublicKey)
		api.GET("/ws", h.HandleWebSocket)
	}

	protectedAPI := api.Group("")
	protectedAPI.Use(h.AuthMiddleware())
	{
		protectedAPI.GET("/me", h.GetMe)
		protectedAPI.GET("/turn-config", h.GetTURNConfig)
		protectedAPI.POST("/push/subscribe", h.SubscribePush)
		protectedAPI.DELETE("/push/subscribe", h.UnsubscribePush)
	}

	calls := router.Group("/CallSupport")
	calls.Use(h.AuthMiddleware())
	{
		calls.POST("/create-room", h.CreateRoom)
		calls.GET("/validate-room/:room_id", h.ValidateRoom)
		calls.POST("/reject-call", h.RejectCall)
		calls.POST("/accept-call", h.AcceptCall)
		calls.GET("/pending", h.ListPendingRooms)
	}
}
