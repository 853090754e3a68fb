package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"killfeed/internal/filter"
	"killfeed/internal/matches"
	"killfeed/internal/model"
	"killfeed/internal/stats"
	"killfeed/internal/store"
)

// FeedSource supplies the feed snapshot evaluated against each event.
type FeedSource interface {
	ListAllFeeds(ctx context.Context) ([]store.Feed, error)
}

// Message is what a Sender delivers to a destination.
type Message struct {
	Content  string         `json:"content"`
	Killmail model.Killmail `json:"killmail"`
}

// Sender delivers one message to one destination. Implementations must be
// safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, destinationID string, msg Message) error
}

// Result is the outcome of evaluating one feed against one event.
type Result struct {
	DestinationID string
	Feed          string
	Matched       bool
	Delivered     bool
	Err           error
}

type Dispatcher struct {
	feeds   FeedSource
	sender  Sender
	matches *matches.Store
	stats   *stats.Store
	logger  *slog.Logger

	deliveryTimeout time.Duration
	sem             chan struct{}
}

func New(feeds FeedSource, sender Sender, m *matches.Store, s *stats.Store, deliveryTimeout time.Duration, maxConcurrent int, logger *slog.Logger) *Dispatcher {
	if deliveryTimeout <= 0 {
		deliveryTimeout = 10 * time.Second
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		feeds:           feeds,
		sender:          sender,
		matches:         m,
		stats:           s,
		logger:          logger,
		deliveryTimeout: deliveryTimeout,
		sem:             make(chan struct{}, maxConcurrent),
	}
}

// Run consumes events until the channel closes or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, in <-chan model.Killmail) {
	for {
		select {
		case km, ok := <-in:
			if !ok {
				return
			}
			results := d.Dispatch(ctx, km)
			for _, res := range results {
				if res.Err != nil {
					d.logger.Warn("delivery failed",
						"destination_id", res.DestinationID, "feed", res.Feed,
						"killmail_id", km.KillmailID, "error", res.Err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch evaluates every feed against the event and delivers to the ones
// that match. A failing feed never blocks or fails its siblings. Deliveries
// run concurrently up to the configured limit, each under its own timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, km model.Killmail) []Result {
	feeds, err := d.feeds.ListAllFeeds(ctx)
	if err != nil {
		d.logger.Error("feed snapshot failed", "error", err)
		return nil
	}

	results := make([]Result, len(feeds))
	var wg sync.WaitGroup
	for i, feed := range feeds {
		res := Result{DestinationID: feed.DestinationID, Feed: feed.Name}
		d.recordEvaluated(feed)
		if !filter.Matches(km, feed.Spec) {
			results[i] = res
			continue
		}
		res.Matched = true
		d.recordMatched(feed)

		wg.Add(1)
		go func(i int, feed store.Feed, res Result) {
			defer wg.Done()
			select {
			case d.sem <- struct{}{}:
				defer func() { <-d.sem }()
			case <-ctx.Done():
				res.Err = ctx.Err()
				results[i] = d.finish(feed, km, res)
				return
			}
			sendCtx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
			defer cancel()
			res.Err = d.send(sendCtx, feed, km)
			res.Delivered = res.Err == nil
			results[i] = d.finish(feed, km, res)
		}(i, feed, res)
	}
	wg.Wait()
	sort.Slice(results, func(i, j int) bool {
		if results[i].DestinationID != results[j].DestinationID {
			return results[i].DestinationID < results[j].DestinationID
		}
		return results[i].Feed < results[j].Feed
	})
	return results
}

func (d *Dispatcher) send(ctx context.Context, feed store.Feed, km model.Killmail) (err error) {
	// a panicking sender must not take down the dispatch loop
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	if d.sender == nil {
		return nil
	}
	msg := Message{
		Content:  fmt.Sprintf("New killmail matching feed `%s`! %s", feed.Name, km.URL),
		Killmail: km,
	}
	return d.sender.Send(ctx, feed.DestinationID, msg)
}

func (d *Dispatcher) finish(feed store.Feed, km model.Killmail, res Result) Result {
	if res.Delivered {
		d.recordDelivered(feed)
	} else {
		d.recordFailed(feed)
	}
	if d.matches != nil {
		rec := model.MatchRecord{
			Timestamp:     time.Now().UTC(),
			DestinationID: feed.DestinationID,
			Feed:          feed.Name,
			KillmailID:    km.KillmailID,
			Delivered:     res.Delivered,
		}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		d.matches.Add(rec)
	}
	return res
}

func (d *Dispatcher) recordEvaluated(feed store.Feed) {
	if d.stats != nil {
		d.stats.Evaluated(feed.DestinationID, feed.Name)
	}
}

func (d *Dispatcher) recordMatched(feed store.Feed) {
	if d.stats != nil {
		d.stats.Matched(feed.DestinationID, feed.Name)
	}
}

func (d *Dispatcher) recordDelivered(feed store.Feed) {
	if d.stats != nil {
		d.stats.Delivered(feed.DestinationID, feed.Name)
	}
}

func (d *Dispatcher) recordFailed(feed store.Feed) {
	if d.stats != nil {
		d.stats.Failed(feed.DestinationID, feed.Name)
	}
}
