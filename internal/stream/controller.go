// Package stream maintains a live view of one order's status: push events
// over the shared WebSocket channel when a credential is available, with a
// one-shot pull fetch as both initializer and fallback.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"quickbite/backend/internal/apiclient"
	"quickbite/backend/internal/hub"
	"quickbite/backend/internal/model"
)

type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// ErrOrderNotFound mirrors the API client sentinel so callers can treat
// it as a terminal "not found" view.
var ErrOrderNotFound = apiclient.ErrOrderNotFound

type Config struct {
	APIBaseURL string
	WSBaseURL  string
	Conns      *ConnManager // defaults to SharedConns()
	HTTPClient *http.Client
	Logger     *log.Logger
}

type Controller struct {
	cfg   Config
	conns *ConnManager

	mu         sync.Mutex
	running    bool
	orderID    string
	credential string
	connState  ConnState
	snapshot   *model.Order
	pending    *statusDelta
	sub        *subscription
	onSnapshot func(model.Order)
	onError    func(error)
}

// statusDelta holds a push event that arrived before the initial pull
// delivered a snapshot to merge it into.
type statusDelta struct {
	status  string
	version int
}

func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	conns := cfg.Conns
	if conns == nil {
		conns = SharedConns()
	}
	return &Controller{
		cfg:       cfg,
		conns:     conns,
		connState: StateDisconnected,
	}
}

// OnSnapshotChange registers the callback invoked with the full snapshot
// every time it is replaced. It is never invoked with partial data.
func (c *Controller) OnSnapshotChange(fn func(model.Order)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSnapshot = fn
}

// OnError registers the callback for pull-fetch failures. ErrOrderNotFound
// is terminal; everything else is a degraded-mode connectivity error.
func (c *Controller) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Start begins tracking an order. Calling it again for the same order
// while running is a no-op; a different order restarts the controller
// cleanly. Without a credential the controller runs in pull-only mode.
func (c *Controller) Start(ctx context.Context, orderID, credential string) error {
	if orderID == "" {
		return errors.New("stream: order id is required")
	}

	c.mu.Lock()
	if c.running && c.orderID == orderID {
		c.mu.Unlock()
		return nil
	}
	if c.running {
		c.stopLocked()
	}
	c.running = true
	c.orderID = orderID
	c.credential = credential
	c.snapshot = nil
	c.pending = nil
	c.connState = StateDisconnected
	c.mu.Unlock()

	if credential != "" {
		c.setConnState(StateConnecting)
		sub, err := c.conns.Acquire(c.cfg.WSBaseURL, credential)
		if err != nil {
			// Channel errors degrade silently to pull-only behavior.
			c.cfg.Logger.Printf("stream: %v", err)
			c.setConnState(StateDisconnected)
		} else {
			c.mu.Lock()
			if !c.running || c.orderID != orderID {
				// Stopped or retargeted while the dial was in flight;
				// the channel must not survive the teardown.
				c.mu.Unlock()
				sub.Release()
			} else {
				c.sub = sub
				c.connState = StateConnected
				c.mu.Unlock()
				go c.consumeEvents(ctx, sub)
			}
		}
	}

	// Push delivers only deltas, so pull once regardless.
	go c.pull(ctx)
	return nil
}

// Refresh performs another pull fetch for the tracked order.
func (c *Controller) Refresh(ctx context.Context) {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running {
		c.pull(ctx)
	}
}

// Stop tears down the subscription. Safe to call multiple times.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if !c.running {
		return
	}
	c.running = false
	if c.sub != nil {
		c.sub.Release()
		c.sub = nil
	}
	c.connState = StateDisconnected
}

// State reports the channel state and whether a snapshot has loaded.
func (c *Controller) State() (ConnState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connState, c.snapshot != nil
}

// Snapshot returns a copy of the current snapshot, if one has loaded.
func (c *Controller) Snapshot() (model.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return model.Order{}, false
	}
	return *c.snapshot, true
}

func (c *Controller) pull(ctx context.Context) {
	c.mu.Lock()
	orderID := c.orderID
	credential := c.credential
	c.mu.Unlock()

	api := apiclient.New(c.cfg.APIBaseURL, credential, c.cfg.HTTPClient)
	order, err := api.GetOrder(ctx, orderID)

	c.mu.Lock()
	if !c.running || c.orderID != orderID {
		// Stopped or restarted while the request was in flight.
		c.mu.Unlock()
		return
	}
	if err != nil {
		fn := c.onError
		c.mu.Unlock()
		if fn != nil {
			fn(err)
		}
		return
	}

	// A pull that raced a newer push event must not regress the snapshot.
	if c.snapshot != nil && order.Version < c.snapshot.Version {
		c.cfg.Logger.Printf("stream: discarding stale pull for order %s (version %d < %d)", orderID, order.Version, c.snapshot.Version)
		c.mu.Unlock()
		return
	}

	c.snapshot = order
	pending := c.pending
	c.pending = nil
	fn := c.onSnapshot
	connected := c.connState == StateConnected
	c.mu.Unlock()

	if fn != nil {
		fn(*order)
	}

	// A push event that raced this pull was held back; fold it in now.
	if pending != nil {
		c.mergeStatus(orderID, pending.status, pending.version)
	}

	// Now that identifiers are known, scope the subscription. Repeating
	// the join is harmless.
	if connected && order.CustomerID != "" {
		c.joinRoom(order.CustomerID, model.UserTypeCustomer)
	}
}

func (c *Controller) joinRoom(userID, userType string) {
	data, _ := json.Marshal(hub.JoinRoomData{UserID: userID, UserType: userType})
	if err := c.conns.Send(hub.Envelope{Type: hub.EventJoinRoom, Data: data}); err != nil {
		c.cfg.Logger.Printf("stream: join-room failed: %v", err)
	}
}

func (c *Controller) consumeEvents(ctx context.Context, sub *subscription) {
	for {
		select {
		case env := <-sub.Events():
			c.handleEvent(env)
		case <-sub.Reconnected():
			// The redialed socket carries no room membership. Pulling
			// re-syncs the snapshot and re-emits the join.
			c.pull(ctx)
		case <-sub.Closed():
			c.setConnState(StateDisconnected)
			return
		}
	}
}

func (c *Controller) handleEvent(env hub.Envelope) {
	switch env.Type {
	case hub.EventOrderStatusUpdate:
		var data hub.OrderStatusUpdateData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return
		}
		c.mergeStatus(data.OrderID, data.NewStatus, data.Version)
	case hub.EventOrderCompleted:
		var data hub.OrderCompletedData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return
		}
		c.mergeStatus(data.OrderID, model.StatusCompleted, 0)
	}
}

// mergeStatus folds a push delta into the snapshot. Events for other
// orders are ignored; an event arriving before the first pull is held
// until the pull delivers a snapshot to merge it into.
func (c *Controller) mergeStatus(orderID, newStatus string, version int) {
	c.mu.Lock()
	if !c.running || orderID != c.orderID {
		c.mu.Unlock()
		return
	}
	if c.snapshot == nil {
		// Events arrive in server order, so the newest delta wins.
		c.pending = &statusDelta{status: newStatus, version: version}
		c.mu.Unlock()
		return
	}
	if version > 0 && version < c.snapshot.Version {
		c.mu.Unlock()
		return
	}

	updated := *c.snapshot
	updated.Status = newStatus
	if version > updated.Version {
		updated.Version = version
	}
	c.snapshot = &updated
	fn := c.onSnapshot
	c.mu.Unlock()

	if fn != nil {
		fn(updated)
	}
}

func (c *Controller) setConnState(state ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || state == StateDisconnected {
		c.connState = state
	}
}
