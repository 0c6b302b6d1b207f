package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quickbite/backend/internal/middleware"
	"quickbite/backend/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
}

type createOrderRequest struct {
	PreparationMinutes int `json:"preparationMinutes"`
}

type updateStatusRequest struct {
	Status  string `json:"status"`
	AgentID string `json:"agentId"`
}

type delayNoticeRequest struct {
	Reason            string `json:"reason"`
	AdditionalMinutes int    `json:"additionalMinutes"`
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}

	customerID := middleware.UserID(c)
	order, apiErr := h.orderService.Create(c.Request.Context(), service.CreateOrderInput{
		CustomerID:         customerID,
		PreparationMinutes: req.PreparationMinutes,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

func (h *OrderHandler) Get(c *gin.Context) {
	order, apiErr := h.orderService.Get(c.Request.Context(), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}

	order, apiErr := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), service.UpdateStatusInput{
		Status:  req.Status,
		AgentID: req.AgentID,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *OrderHandler) SubmitDelayNotice(c *gin.Context) {
	var req delayNoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}

	order, apiErr := h.orderService.SubmitDelayNotice(c.Request.Context(), c.Param("id"), service.DelayNoticeInput{
		Reason:            req.Reason,
		AdditionalMinutes: req.AdditionalMinutes,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *OrderHandler) ListEvents(c *gin.Context) {
	events, apiErr := h.orderService.ListEvents(c.Request.Context(), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
