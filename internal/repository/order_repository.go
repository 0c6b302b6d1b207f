package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quickbite/backend/internal/model"
)

var ErrNotFound = errors.New("not found")

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order *model.Order) error {
	var agentID interface{}
	if order.AssignedAgentID != nil {
		agentID = *order.AssignedAgentID
	}
	var delayReason interface{}
	if order.DelayReason != nil {
		delayReason = *order.DelayReason
	}

	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO orders (
			id, customer_id, assigned_agent_id, status, preparation_minutes,
			delay_reason, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.CustomerID,
		agentID,
		order.Status,
		order.PreparationMinutes,
		delayReason,
		order.Version,
		formatTime(order.CreatedAt),
		formatTime(order.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, orderID string) (*model.Order, error) {
	row := r.db.QueryRowContext(ctx, selectOrderQuery+` WHERE id = ?`, orderID)
	return scanOrder(row)
}

func (r *OrderRepository) GetTx(ctx context.Context, tx *sql.Tx, orderID string) (*model.Order, error) {
	row := tx.QueryRowContext(ctx, selectOrderQuery+` WHERE id = ?`, orderID)
	return scanOrder(row)
}

func (r *OrderRepository) UpdateTx(ctx context.Context, tx *sql.Tx, order *model.Order) error {
	var agentID interface{}
	if order.AssignedAgentID != nil {
		agentID = *order.AssignedAgentID
	}
	var delayReason interface{}
	if order.DelayReason != nil {
		delayReason = *order.DelayReason
	}

	_, err := tx.ExecContext(
		ctx,
		`UPDATE orders
		 SET customer_id = ?,
		     assigned_agent_id = ?,
		     status = ?,
		     preparation_minutes = ?,
		     delay_reason = ?,
		     version = ?,
		     updated_at = ?
		 WHERE id = ?`,
		order.CustomerID,
		agentID,
		order.Status,
		order.PreparationMinutes,
		delayReason,
		order.Version,
		formatTime(order.UpdatedAt),
		order.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func (r *OrderRepository) InsertEventTx(ctx context.Context, tx *sql.Tx, event *model.OrderEvent) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO order_events (id, order_id, kind, detail, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		event.ID,
		event.OrderID,
		event.Kind,
		event.Detail,
		formatTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert order event: %w", err)
	}
	return nil
}

func (r *OrderRepository) ListEvents(ctx context.Context, orderID string) ([]model.OrderEvent, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, order_id, kind, detail, created_at
		 FROM order_events
		 WHERE order_id = ?
		 ORDER BY created_at ASC`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list order events: %w", err)
	}
	defer rows.Close()

	events := make([]model.OrderEvent, 0)
	for rows.Next() {
		var event model.OrderEvent
		var createdAt string
		if err := rows.Scan(&event.ID, &event.OrderID, &event.Kind, &event.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan order event: %w", err)
		}
		parsedCreatedAt, parseErr := parseTime(createdAt)
		if parseErr != nil {
			return nil, fmt.Errorf("parse event created_at: %w", parseErr)
		}
		event.CreatedAt = parsedCreatedAt
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order events: %w", err)
	}

	return events, nil
}

const selectOrderQuery = `SELECT id, customer_id, assigned_agent_id, status, preparation_minutes,
	delay_reason, version, created_at, updated_at
 FROM orders`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s scanner) (*model.Order, error) {
	order := model.Order{}
	var agentID sql.NullString
	var delayReason sql.NullString
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&order.ID,
		&order.CustomerID,
		&agentID,
		&order.Status,
		&order.PreparationMinutes,
		&delayReason,
		&order.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if agentID.Valid {
		value := agentID.String
		order.AssignedAgentID = &value
	}
	if delayReason.Valid {
		value := delayReason.String
		order.DelayReason = &value
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse order created_at: %w", err)
	}
	order.CreatedAt = parsedCreatedAt

	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse order updated_at: %w", err)
	}
	order.UpdatedAt = parsedUpdatedAt

	return &order, nil
}
