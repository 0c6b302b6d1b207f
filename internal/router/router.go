package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quickbite/backend/internal/handler"
	"quickbite/backend/internal/hub"
	"quickbite/backend/internal/middleware"
	"quickbite/backend/internal/model"
	"quickbite/backend/internal/service"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	orderHandler *handler.OrderHandler,
	pushHub *hub.Hub,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	orders := api.Group("/orders")
	// Reads are open so tracking works without a credential (pull-only mode).
	orders.GET("/:id", orderHandler.Get)
	orders.GET("/:id/events", orderHandler.ListEvents)
	orders.POST("", middleware.Auth(authService), middleware.RequireType(model.UserTypeCustomer), orderHandler.Create)
	orders.PUT("/:id/status", middleware.Auth(authService), middleware.RequireType(model.UserTypeMerchant), orderHandler.UpdateStatus)
	orders.POST("/:id/delay-reason", middleware.Auth(authService), middleware.RequireType(model.UserTypeMerchant), orderHandler.SubmitDelayNotice)

	engine.GET("/ws", middleware.Auth(authService), pushHub.HandleWS)

	return engine
}
