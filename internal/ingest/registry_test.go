package ingest

import (
	"context"
	"testing"
	"time"
)

func TestRegistryStartReplacesOccupant(t *testing.T) {
	r := NewRegistry()
	slot := Slot{DestinationID: "chan-1", Feed: "bigkills"}

	firstStopped := make(chan struct{})
	r.Start(context.Background(), slot, func(ctx context.Context) {
		<-ctx.Done()
		close(firstStopped)
	})
	r.Start(context.Background(), slot, func(ctx context.Context) {
		<-ctx.Done()
	})

	select {
	case <-firstStopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("starting over an occupied slot did not cancel the old listener")
	}
	if !r.Active(slot) {
		t.Fatalf("slot should still be active under the new listener")
	}
	r.StopAll()
}

func TestRegistryStop(t *testing.T) {
	r := NewRegistry()
	slot := Slot{DestinationID: "chan-1", Feed: "a"}
	stopped := make(chan struct{})
	r.Start(context.Background(), slot, func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	})
	r.Stop(slot)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not cancel the listener")
	}
	if r.Active(slot) {
		t.Fatalf("slot still active after stop")
	}
}

func TestRegistryStopAllWaits(t *testing.T) {
	r := NewRegistry()
	for _, slot := range []Slot{{"chan-1", "a"}, {"chan-1", "b"}, {"chan-2", "a"}} {
		r.Start(context.Background(), slot, func(ctx context.Context) {
			<-ctx.Done()
		})
	}
	done := make(chan struct{})
	go func() {
		r.StopAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("StopAll did not return")
	}
}
