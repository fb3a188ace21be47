package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/khenidak/etcdsession/pkg/session/sessionerrors"
	"github.com/khenidak/etcdsession/pkg/types"
	testutils "github.com/khenidak/etcdsession/test/utils"
)

func waitForWatchers(t *testing.T, app *testutils.TestApp, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for app.Frontend.Watchers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %v watchers, have %v", n, app.Frontend.Watchers())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitForWatch(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for watch to return")
	}
	return nil
}

func TestWatchDeliversInOrder(t *testing.T) {
	app := testutils.CreateTestApp(t)
	defer app.Stop()
	s := connectSession(t, app)
	defer s.Close()

	ctx := context.Background()
	prefix := fmt.Sprintf("/%s/", testutils.RandStringRunes(8))

	events := make([]types.Event, 0)
	result := make(chan error, 1)
	go func() {
		result <- s.Watch(ctx, prefix, func(batch []types.Event) bool {
			events = append(events, batch...)
			return len(events) >= 3
		})
	}()
	waitForWatchers(t, app, 1)

	writer := connectSession(t, app)
	defer writer.Close()
	if err := writer.Put(ctx, prefix+"a", []byte("1"), true); err != nil {
		t.Fatalf("failed to put with err:%v", err)
	}
	if err := writer.Put(ctx, "/elsewhere/a", []byte("x"), false); err != nil {
		t.Fatalf("failed to put with err:%v", err)
	}
	if err := writer.Put(ctx, prefix+"a", []byte("2"), false); err != nil {
		t.Fatalf("failed to put with err:%v", err)
	}
	if err := writer.Delete(ctx, prefix+"a"); err != nil {
		t.Fatalf("failed to delete with err:%v", err)
	}

	if err := waitForWatch(t, result); err != nil {
		t.Fatalf("watch failed with err:%v", err)
	}

	expected := []struct {
		eventType types.EventType
		value     string
		version   int64
	}{
		{types.PutEvent, "1", 1},
		{types.PutEvent, "2", 2},
		{types.DeleteEvent, "", 0},
	}
	if len(events) != len(expected) {
		t.Fatalf("expected %v events got %v", len(expected), len(events))
	}
	for i, e := range expected {
		got := events[i]
		if got.Key != prefix+"a" || got.Type != e.eventType || string(got.Value) != e.value || got.Version != e.version {
			t.Fatalf("event %v: expected %v %v(v%v) got %+v", i, e.eventType, e.value, e.version, got)
		}
	}
	if events[0].LeaseID != writer.LeaseID() {
		t.Fatalf("expected first event to carry lease %v got %v", writer.LeaseID(), events[0].LeaseID)
	}
	if events[1].LeaseID != 0 {
		t.Fatalf("expected second event without a lease got %v", events[1].LeaseID)
	}

	if !s.Connected() {
		t.Fatalf("expected session to stay connected after handler stop")
	}
}

func TestWatchStopsAfterTwoEvents(t *testing.T) {
	app := testutils.CreateTestApp(t)
	defer app.Stop()
	s := connectSession(t, app)
	defer s.Close()

	ctx := context.Background()
	prefix := fmt.Sprintf("/%s/", testutils.RandStringRunes(8))

	count := 0
	result := make(chan error, 1)
	go func() {
		result <- s.Watch(ctx, prefix, func(batch []types.Event) bool {
			count = count + len(batch)
			return count >= 2
		})
	}()
	waitForWatchers(t, app, 1)

	for _, k := range []string{"x", "y"} {
		if err := s.Put(ctx, prefix+k, []byte(k), false); err != nil {
			t.Fatalf("failed to put with err:%v", err)
		}
	}

	if err := waitForWatch(t, result); err != nil {
		t.Fatalf("watch failed with err:%v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 events got %v", count)
	}
}

func TestWatchContextCancel(t *testing.T) {
	app := testutils.CreateTestApp(t)
	defer app.Stop()
	s := connectSession(t, app)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- s.Watch(ctx, "/cancel/", func([]types.Event) bool { return false })
	}()
	waitForWatchers(t, app, 1)

	cancel()
	err := waitForWatch(t, result)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled got %v", err)
	}
	if !s.Connected() {
		t.Fatalf("expected session to stay connected after cancel")
	}
}

func TestWatchServerCancel(t *testing.T) {
	app := testutils.CreateTestApp(t)
	defer app.Stop()
	s := connectSession(t, app)
	defer s.Close()

	result := make(chan error, 1)
	go func() {
		result <- s.Watch(context.Background(), "/server-cancel/", func([]types.Event) bool { return false })
	}()
	waitForWatchers(t, app, 1)

	app.Frontend.CancelWatches("going away")
	err := waitForWatch(t, result)
	if !sessionerrors.IsStreamTerminatedError(err) {
		t.Fatalf("expected stream terminated got %v", err)
	}
	if s.Connected() {
		t.Fatalf("expected terminated watch to disconnect the session")
	}
}

func TestWatchCreateRejected(t *testing.T) {
	app := testutils.CreateTestApp(t)
	defer app.Stop()
	s := connectSession(t, app)
	defer s.Close()

	app.Frontend.Faults().RejectWatchCreate("watch not allowed")
	result := make(chan error, 1)
	go func() {
		result <- s.Watch(context.Background(), "/rejected/", func([]types.Event) bool { return false })
	}()

	err := waitForWatch(t, result)

	if !sessionerrors.IsStreamTerminatedError(err) {
		t.Fatalf("expected stream terminated got %v", err)
	}
	if s.Connected() {
		t.Fatalf("expected a rejected watch to disconnect the session")
	}
	if app.Frontend.Watchers() != 0 {
		t.Fatalf("expected no watcher to be registered got %v", app.Frontend.Watchers())
	}
}
