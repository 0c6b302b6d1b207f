// Command tracker follows one order live: push events when a credential
// is given, pull-only otherwise, with the preparation countdown and alert
// phases printed as they change.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"quickbite/backend/internal/apiclient"
	"quickbite/backend/internal/model"
	"quickbite/backend/internal/prep"
	"quickbite/backend/internal/stream"
)

// bellAlerter rings the terminal bell. Best effort, like any audio alert.
type bellAlerter struct{}

func (bellAlerter) Pulse(string) error {
	_, err := fmt.Fprint(os.Stdout, "\a")
	return err
}

func main() {
	orderID := flag.String("order", "", "order id to track")
	apiURL := flag.String("api", "http://localhost:8080", "backend base URL")
	wsURL := flag.String("ws", "", "push channel base URL (defaults to -api with ws scheme)")
	token := flag.String("token", "", "bearer credential; empty runs pull-only")
	flag.Parse()

	if *orderID == "" {
		log.Fatal("-order is required")
	}
	if *wsURL == "" {
		*wsURL = strings.Replace(*apiURL, "http", "ws", 1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := prep.NewEngine(prep.Config{
		Alerter:  bellAlerter{},
		Notifier: apiclient.New(*apiURL, *token, nil),
		OnChange: func(id string, state prep.TimerState) {
			log.Printf("order %s: %s [%s]", id, prep.FormatRemaining(state.RemainingSeconds), state.AlertPhase)
		},
	})

	ctrl := stream.New(stream.Config{
		APIBaseURL: *apiURL,
		WSBaseURL:  *wsURL,
	})
	ctrl.OnSnapshotChange(func(order model.Order) {
		log.Printf("order %s: status=%s version=%d", order.ID, order.Status, order.Version)
		if order.DelayReason != nil {
			log.Printf("order %s: delay reason: %s", order.ID, *order.DelayReason)
		}
		engine.Observe(order)
	})
	ctrl.OnError(func(err error) {
		if errors.Is(err, stream.ErrOrderNotFound) {
			log.Fatalf("order %s not found", *orderID)
		}
		log.Printf("fetch failed: %v", err)
	})

	if err := ctrl.Start(ctx, *orderID, *token); err != nil {
		log.Fatalf("start tracking: %v", err)
	}
	defer ctrl.Stop()
	defer engine.Close()

	connState, _ := ctrl.State()
	log.Printf("tracking order %s (channel: %s)", *orderID, connState)

	engine.Run(ctx)
}
