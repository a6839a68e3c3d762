package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fluxorio/tasklist/pkg/core"
	natssrv "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func runTestNATSServer(t *testing.T) *natssrv.Server {
	t.Helper()

	s, err := natssrv.NewServer(&natssrv.Options{Port: -1})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		t.Fatalf("nats server not ready")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestNATSPublisher_Publish(t *testing.T) {
	s := runTestNATSServer(t)

	sub, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	msgs := make(chan *nats.Msg, 4)
	if _, err := sub.ChanSubscribe("tasklist.test.>", msgs); err != nil {
		t.Fatal(err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatal(err)
	}

	pub, err := NewNATSPublisher(NATSConfig{URL: s.ClientURL(), Prefix: "tasklist.test."})
	if err != nil {
		t.Fatalf("NewNATSPublisher() error = %v", err)
	}
	defer pub.Close()

	ctx := core.WithRequestID(context.Background(), "req-5")
	task := map[string]interface{}{"id": 5, "title": "Buy milk", "completed": false}
	if err := pub.Publish(ctx, Event{Type: TaskCreated, TaskID: 5, Task: task}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Subject != "tasklist.test.task.created" {
			t.Errorf("subject = %q", msg.Subject)
		}
		if got := msg.Header.Get(core.HeaderRequestID); got != "req-5" {
			t.Errorf("X-Request-ID = %q, want req-5", got)
		}
		var got Event
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("payload is not JSON: %v", err)
		}
		if got.Type != TaskCreated || got.TaskID != 5 || got.RequestID != "req-5" || got.OccurredAt.IsZero() {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestNATSPublisher_Errors(t *testing.T) {
	s := runTestNATSServer(t)

	pub, err := NewNATSPublisher(NATSConfig{URL: s.ClientURL()})
	if err != nil {
		t.Fatal(err)
	}
	if pub.Subject(TaskDeleted) != "tasklist.task.deleted" {
		t.Errorf("Subject() = %q", pub.Subject(TaskDeleted))
	}
	if err := pub.Publish(context.Background(), Event{}); err == nil {
		t.Error("Publish() without type should fail")
	}
	if err := pub.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if _, err := NewNATSPublisher(NATSConfig{URL: "nats://127.0.0.1:1"}); err == nil {
		t.Error("NewNATSPublisher() to a closed port should fail")
	}
}

type countingRecorder map[string]int

func (c countingRecorder) RecordEvent(eventType, outcome string) {
	c[eventType+"/"+outcome]++
}

type failingPublisher struct{ NopPublisher }

func (failingPublisher) Publish(context.Context, Event) error { return errors.New("down") }

func TestInstrumented(t *testing.T) {
	rec := countingRecorder{}

	ok := Instrumented(NopPublisher{}, rec)
	_ = ok.Publish(context.Background(), Event{Type: TaskUpdated})

	bad := Instrumented(failingPublisher{}, rec)
	if err := bad.Publish(context.Background(), Event{Type: TaskDeleted}); err == nil {
		t.Error("error was swallowed")
	}

	if rec["task.updated/ok"] != 1 || rec["task.deleted/error"] != 1 {
		t.Errorf("recorded = %v", rec)
	}
	if Instrumented(NopPublisher{}, nil) != (NopPublisher{}) {
		t.Error("nil recorder should return the publisher unchanged")
	}
}
