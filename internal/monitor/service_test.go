package monitor

import (
	"context"
	"testing"
	"time"

	"volt-trader/internal/config"
	"volt-trader/internal/risk"
	"volt-trader/internal/signal"
	"volt-trader/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	sqliteStore, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })

	svc, err := NewService(sqliteStore, nil)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	return svc
}

func TestService_RecordAndListEvents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sig := signal.Signal{
		Symbol:     "BTC/USDT",
		Action:     signal.ActionBuy,
		Strength:   0.8,
		EntryPrice: 50000,
		Timestamp:  time.Now().UTC(),
	}
	svc.RecordSignal(ctx, sig)
	svc.RecordRisk(ctx, sig, risk.Assessment{Approved: true, PositionSize: 0.05, Reason: "风控评估通过"})

	signals, err := svc.ListEvents(ctx, EventSignal, 10)
	if err != nil {
		t.Fatalf("list signal events: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal event, got %d", len(signals))
	}
	if signals[0].Type != EventSignal {
		t.Errorf("unexpected event type %s", signals[0].Type)
	}
	if signals[0].Timestamp.IsZero() {
		t.Errorf("expected timestamp to be set")
	}

	all, err := svc.ListEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("list all events: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 events in total, got %d", len(all))
	}
}

func TestService_RecordErrorTolerantToNil(t *testing.T) {
	svc := newTestService(t)

	// err 为空时也要能落库，不得崩溃。
	svc.RecordError(context.Background(), "循环异常", nil, map[string]interface{}{"loop": 3})

	events, err := svc.ListEvents(context.Background(), EventError, 10)
	if err != nil {
		t.Fatalf("list error events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(events))
	}
}
