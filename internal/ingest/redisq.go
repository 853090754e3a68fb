package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"killfeed/internal/config"
	"killfeed/internal/model"
	"killfeed/internal/normalize"
)

const (
	initialPollDelay = time.Second
	errLogSuppress   = 5 * time.Minute
)

// Poller long-polls the zKillboard RedisQ endpoint. Each successful request
// returns either one killmail or a null package when the queue is idle.
// Failures back off exponentially up to MaxBackoff and reset on the next
// success; repeats of the same error are only logged every few minutes.
type Poller struct {
	cfg     config.RedisQConfig
	client  *http.Client
	regions normalize.RegionLookup
	out     chan<- model.Killmail
	logger  *slog.Logger

	// sleep is swappable so tests can drive the backoff without timers.
	sleep func(ctx context.Context, d time.Duration) bool

	delay     time.Duration
	lastErr   string
	lastErrAt time.Time
}

func NewPoller(cfg config.RedisQConfig, regions normalize.RegionLookup, out chan<- model.Killmail, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Poller{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		regions: regions,
		out:     out,
		logger:  logger,
		sleep:   BackoffSleep,
		delay:   initialPollDelay,
	}
}

func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("redisq ingest enabled", "url", p.cfg.URL, "queue_id", p.cfg.QueueID)
	for ctx.Err() == nil {
		delivered, err := p.PollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.recordFailure(err)
			if !p.sleep(ctx, p.delay) {
				return
			}
			continue
		}
		p.recordSuccess()
		if !delivered {
			// idle queue, poll again shortly
			if !p.sleep(ctx, initialPollDelay) {
				return
			}
		}
	}
}

// PollOnce issues one long-poll request. Returns delivered=false on an
// empty (null package) response.
func (p *Poller) PollOnce(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.cfg.URL+"?queueID="+url.QueryEscape(p.cfg.QueueID), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return false, &statusError{status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return false, err
	}

	pkg := gjson.GetBytes(body, "package")
	if !pkg.Exists() || pkg.Type == gjson.Null {
		return false, nil
	}

	km, err := normalize.Normalize(ctx, body, p.regions)
	if err != nil {
		p.logger.Warn("redisq event rejected", "error", err)
		return false, nil
	}
	Send(ctx, p.out, km)
	return true, nil
}

func (p *Poller) recordSuccess() {
	p.delay = initialPollDelay
	p.lastErr = ""
}

func (p *Poller) recordFailure(err error) {
	msg := err.Error()
	now := time.Now()
	if msg != p.lastErr || now.Sub(p.lastErrAt) >= errLogSuppress {
		p.logger.Warn("redisq poll failed", "error", msg, "retry_in", p.delay.String())
		p.lastErr = msg
		p.lastErrAt = now
	}
	p.delay *= 2
	if max := p.cfg.MaxBackoff; max > 0 && p.delay > max {
		p.delay = max
	}
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("redisq: unexpected status %d", e.status)
}
