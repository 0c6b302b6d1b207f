package model

import "time"

const (
	StatusPlaced         = "placed"
	StatusPreparing      = "preparing"
	StatusReady          = "ready"
	StatusOutForDelivery = "out_for_delivery"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
)

// DefaultPreparationMinutes is used when an order carries no usable estimate.
const DefaultPreparationMinutes = 20

// statusRank orders the lifecycle statuses. Cancelled sits outside the
// forward progression and is reachable from any non-terminal status.
var statusRank = map[string]int{
	StatusPlaced:         1,
	StatusPreparing:      2,
	StatusReady:          3,
	StatusOutForDelivery: 4,
	StatusCompleted:      5,
}

func IsValidStatus(status string) bool {
	if status == StatusCancelled {
		return true
	}
	_, ok := statusRank[status]
	return ok
}

func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// CanTransition reports whether an order may move from one status to
// another. Only forward moves along the lifecycle are allowed, plus
// cancellation from any non-terminal status.
func CanTransition(from, to string) bool {
	if IsTerminalStatus(from) {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

type Order struct {
	ID                 string    `json:"id"`
	CustomerID         string    `json:"customerId"`
	AssignedAgentID    *string   `json:"assignedAgentId,omitempty"`
	Status             string    `json:"status"`
	PreparationMinutes int       `json:"preparationMinutes"`
	DelayReason        *string   `json:"delayReason,omitempty"`
	Version            int       `json:"version"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// EffectivePreparationMinutes falls back to the default when the
// server-supplied estimate is absent or non-positive.
func (o *Order) EffectivePreparationMinutes() int {
	if o.PreparationMinutes <= 0 {
		return DefaultPreparationMinutes
	}
	return o.PreparationMinutes
}

// PreparationDeadline is the instant by which a preparing order is
// expected to be ready. UpdatedAt anchors the countdown.
func (o *Order) PreparationDeadline() time.Time {
	return o.UpdatedAt.Add(time.Duration(o.EffectivePreparationMinutes()) * time.Minute)
}

const (
	EventKindStatusChange = "status_change"
	EventKindDelayNotice  = "delay_notice"
)

type OrderEvent struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"createdAt"`
}
