package ingest

import (
	"context"
	"time"

	"killfeed/internal/model"
)

// Send blocks until the event is accepted or ctx is cancelled. Sources slow
// down when the matcher falls behind instead of dropping killmails.
func Send(ctx context.Context, out chan<- model.Killmail, km model.Killmail) bool {
	select {
	case out <- km:
		return true
	case <-ctx.Done():
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
