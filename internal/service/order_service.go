package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "quickbite/backend/internal/errors"
	"quickbite/backend/internal/model"
	"quickbite/backend/internal/repository"
)

const (
	maxDelayReasonLength = 500
	maxAdditionalMinutes = 60
)

// OrderPublisher pushes order updates to connected clients. The WebSocket
// hub implements it; tests stub it out.
type OrderPublisher interface {
	PublishOrderUpdate(order *model.Order)
}

type OrderService struct {
	repo      *repository.OrderRepository
	publisher OrderPublisher
}

type CreateOrderInput struct {
	CustomerID         string
	PreparationMinutes int
}

type UpdateStatusInput struct {
	Status  string
	AgentID string
}

type DelayNoticeInput struct {
	Reason            string
	AdditionalMinutes int
}

func NewOrderService(repo *repository.OrderRepository, publisher OrderPublisher) *OrderService {
	return &OrderService{repo: repo, publisher: publisher}
}

func (s *OrderService) Create(ctx context.Context, input CreateOrderInput) (*model.Order, *apperrors.APIError) {
	minutes := input.PreparationMinutes
	if minutes <= 0 {
		minutes = model.DefaultPreparationMinutes
	}
	if minutes > 240 {
		return nil, apperrors.BadRequest("invalid_preparation_minutes", "preparationMinutes must be at most 240")
	}

	now := time.Now().UTC()
	order := model.Order{
		ID:                 uuid.NewString(),
		CustomerID:         input.CustomerID,
		Status:             model.StatusPlaced,
		PreparationMinutes: minutes,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Insert(ctx, &order); err != nil {
		return nil, apperrors.Internal("failed to create order")
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	event := model.OrderEvent{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Kind:      model.EventKindStatusChange,
		Detail:    "order placed",
		CreatedAt: now,
	}
	if err := s.repo.InsertEventTx(ctx, tx, &event); err != nil {
		return nil, apperrors.Internal("failed to record order event")
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	return &order, nil
}

func (s *OrderService) Get(ctx context.Context, orderID string) (*model.Order, *apperrors.APIError) {
	order, err := s.repo.Get(ctx, orderID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("order_not_found", "order not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get order")
	}
	return order, nil
}

// UpdateStatus moves an order forward along its lifecycle. Leaving the
// preparing status clears any delay reason; UpdatedAt is reset so it can
// anchor the next preparation countdown.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, input UpdateStatusInput) (*model.Order, *apperrors.APIError) {
	if !model.IsValidStatus(input.Status) {
		return nil, apperrors.BadRequest("invalid_status", "unknown order status")
	}

	now := time.Now().UTC()
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	order, apiErr := s.getOrderTx(ctx, tx, orderID)
	if apiErr != nil {
		return nil, apiErr
	}

	if order.Status == input.Status {
		return order, nil
	}
	if !model.CanTransition(order.Status, input.Status) {
		return nil, apperrors.Conflict(
			"invalid_transition",
			fmt.Sprintf("cannot move order from %s to %s", order.Status, input.Status),
			nil,
		)
	}

	if order.Status == model.StatusPreparing {
		order.DelayReason = nil
	}
	if input.AgentID != "" {
		agentID := input.AgentID
		order.AssignedAgentID = &agentID
	}

	previous := order.Status
	order.Status = input.Status
	order.UpdatedAt = now
	order.Version++

	if err := s.repo.UpdateTx(ctx, tx, order); err != nil {
		return nil, apperrors.Internal("failed to update order")
	}

	event := model.OrderEvent{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Kind:      model.EventKindStatusChange,
		Detail:    fmt.Sprintf("status %s -> %s", previous, order.Status),
		CreatedAt: now,
	}
	if err := s.repo.InsertEventTx(ctx, tx, &event); err != nil {
		return nil, apperrors.Internal("failed to record order event")
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	if s.publisher != nil {
		s.publisher.PublishOrderUpdate(order)
	}
	return order, nil
}

// SubmitDelayNotice records a delay reason for an order that is still
// preparing and extends the preparation estimate. UpdatedAt is left alone:
// the countdown stays anchored where preparation started, so the extra
// minutes shift the deadline by exactly the requested amount.
func (s *OrderService) SubmitDelayNotice(ctx context.Context, orderID string, input DelayNoticeInput) (*model.Order, *apperrors.APIError) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, apperrors.BadRequest("invalid_reason", "reason is required")
	}
	if len(reason) > maxDelayReasonLength {
		return nil, apperrors.BadRequest("invalid_reason", "reason is too long")
	}
	if input.AdditionalMinutes != 0 && (input.AdditionalMinutes < 1 || input.AdditionalMinutes > maxAdditionalMinutes) {
		return nil, apperrors.BadRequest("invalid_additional_minutes", "additionalMinutes must be between 1 and 60")
	}

	now := time.Now().UTC()
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	order, apiErr := s.getOrderTx(ctx, tx, orderID)
	if apiErr != nil {
		return nil, apiErr
	}

	if order.Status != model.StatusPreparing {
		return nil, apperrors.Conflict("not_preparing", "delay notice is only valid while the order is preparing", nil)
	}

	order.DelayReason = &reason
	if input.AdditionalMinutes > 0 {
		order.PreparationMinutes = order.EffectivePreparationMinutes() + input.AdditionalMinutes
	}
	order.Version++

	if err := s.repo.UpdateTx(ctx, tx, order); err != nil {
		return nil, apperrors.Internal("failed to update order")
	}

	detail := reason
	if input.AdditionalMinutes > 0 {
		detail = fmt.Sprintf("%s (+%d min)", reason, input.AdditionalMinutes)
	}
	event := model.OrderEvent{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Kind:      model.EventKindDelayNotice,
		Detail:    detail,
		CreatedAt: now,
	}
	if err := s.repo.InsertEventTx(ctx, tx, &event); err != nil {
		return nil, apperrors.Internal("failed to record order event")
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	if s.publisher != nil {
		s.publisher.PublishOrderUpdate(order)
	}
	return order, nil
}

func (s *OrderService) ListEvents(ctx context.Context, orderID string) ([]model.OrderEvent, *apperrors.APIError) {
	if _, apiErr := s.Get(ctx, orderID); apiErr != nil {
		return nil, apiErr
	}
	events, err := s.repo.ListEvents(ctx, orderID)
	if err != nil {
		return nil, apperrors.Internal("failed to list order events")
	}
	return events, nil
}

func (s *OrderService) getOrderTx(ctx context.Context, tx *sql.Tx, orderID string) (*model.Order, *apperrors.APIError) {
	order, err := s.repo.GetTx(ctx, tx, orderID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("order_not_found", "order not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get order")
	}
	return order, nil
}
