package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"commodus/internal/domain"
	"commodus/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testTask() domain.Task {
	return domain.Task{
		Type:            domain.TaskCreate,
		Name:            "Maximus",
		Symbol:          "MAX",
		Description:     "gladiator",
		Image:           "https://img.example/m.png",
		VerifiedAddress: "0x85F0337c410D6179B7dC8c3E0e329483a89C3c6B",
		Reply:           "Worthy.",
		Parent:          "0xparent",
	}
}

func TestDispatch_SendsTaskWithSecret(t *testing.T) {
	received := make(chan domain.Task, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/commodus/task" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "shh" {
			t.Errorf("missing shared secret header")
		}
		var task domain.Task
		json.NewDecoder(r.Body).Decode(&task)
		received <- task
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer srv.Close()

	d := New(Config{BaseURL: srv.URL, Secret: "shh", Logger: testLogger()})
	ok := d.Dispatch(context.Background(), testTask())
	if !ok {
		t.Fatal("dispatch should report transport handoff")
	}

	select {
	case task := <-received:
		if task.Type != domain.TaskCreate || task.Name != "Maximus" {
			t.Errorf("unexpected task: %+v", task)
		}
		if task.ID == "" {
			t.Error("dispatch should assign a correlation ID")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker endpoint never received the task")
	}
}

func TestDispatch_SurvivesParentCancellation(t *testing.T) {
	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- struct{}{}
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer srv.Close()

	d := New(Config{BaseURL: srv.URL, Secret: "shh", Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, testTask())
	cancel() // parent request ends immediately

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelling the parent context must not cancel the dispatched send")
	}
}

func TestDispatch_TransportFailureCountedNotPropagated(t *testing.T) {
	reg := metrics.NewRegistry()
	d := New(Config{
		BaseURL: "http://127.0.0.1:1", // nothing listens here
		Secret:  "shh",
		Timeout: 500 * time.Millisecond,
		Logger:  testLogger(),
		Metrics: reg,
	})

	// Dispatch still reports handoff; the loss shows up in the counter.
	if ok := d.Dispatch(context.Background(), testTask()); !ok {
		t.Error("handoff should succeed even when the send will fail")
	}
	d.Wait()

	dropped := reg.Counter("tasks_dropped_total", "", "")
	if dropped.Value() != 1 {
		t.Errorf("expected 1 dropped task, got %d", dropped.Value())
	}
}

func TestDispatch_RejectionCounted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	reg := metrics.NewRegistry()
	d := New(Config{BaseURL: srv.URL, Secret: "wrong", Logger: testLogger(), Metrics: reg})
	d.Dispatch(context.Background(), testTask())
	d.Wait()

	if reg.Counter("tasks_dropped_total", "", "").Value() != 1 {
		t.Error("a 4xx from the worker endpoint should count as a dropped task")
	}
}
