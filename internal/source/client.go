package source

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultAttempts = 3
	DefaultBackoff  = 2 * time.Second
)

// ClientOptions tune the retry behaviour of a Client.
type ClientOptions struct {
	// Timeout bounds each attempt.
	Timeout time.Duration
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the wait before the second attempt. Later waits double.
	Backoff time.Duration
}

// DefaultClientOptions returns 10s per attempt, 3 attempts, waits of 2s then 4s.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{Timeout: DefaultTimeout, Attempts: DefaultAttempts, Backoff: DefaultBackoff}
}

// Client wraps a Fetcher with per-attempt timeouts, exponential backoff for
// retryable failures and de-duplication of identical in-flight requests.
type Client struct {
	fetcher Fetcher
	timeout time.Duration
	retrier *retrier.Retrier
	group   singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the detached context of one shared request. It is cancelled when
// the last waiting caller leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewClient wraps f.
func NewClient(f Fetcher, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	var backoff []time.Duration
	if opts.Attempts > 1 {
		backoff = retrier.ExponentialBackoff(opts.Attempts-1, opts.Backoff)
	}
	return &Client{
		fetcher: f,
		timeout: opts.Timeout,
		retrier: retrier.New(backoff, retryClassifier{}),
		flights: make(map[string]*flight),
	}
}

// FetchLogs implements Fetcher.
func (c *Client) FetchLogs(ctx context.Context, kind models.Kind, dctx models.DrilldownContext) ([]models.RawRow, error) {
	op := "logs/" + strings.ToLower(kind.Code())
	v, err := c.shared(ctx, op+"|"+dctx.Key(), op, func(ctx context.Context) (any, error) {
		return c.fetcher.FetchLogs(ctx, kind, dctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.RawRow), nil
}

// FetchOptions implements Fetcher.
func (c *Client) FetchOptions(ctx context.Context, level models.DrilldownLevel, parent models.DrilldownContext) ([]models.Option, error) {
	op := "options/" + string(level)
	v, err := c.shared(ctx, op+"|"+parent.Key(), op, func(ctx context.Context) (any, error) {
		return c.fetcher.FetchOptions(ctx, level, parent)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Option), nil
}

// EquipmentInfo implements Fetcher.
func (c *Client) EquipmentInfo(ctx context.Context, lineID, eqpID string) (*models.EquipmentInfo, error) {
	op := "equipment-info"
	v, err := c.shared(ctx, op+"|"+lineID+"|"+eqpID, op, func(ctx context.Context) (any, error) {
		return c.fetcher.EquipmentInfo(ctx, lineID, eqpID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.EquipmentInfo), nil
}

// shared runs fn once for concurrent callers with the same key. The request
// runs detached from any single caller, so a cancelled caller only stops
// waiting; the request itself is cancelled once no caller is left.
func (c *Client) shared(ctx context.Context, key, op string, fn func(context.Context) (any, error)) (any, error) {
	f := c.join(ctx, key)
	defer c.leave(key, f)

	ch := c.group.DoChan(key, func() (any, error) {
		return c.run(f.ctx, op, fn)
	})
	select {
	case res := <-ch:
		if res.Shared {
			log.Debug().Str("component", "source").Str("op", op).Msg("joined in-flight request")
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) join(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *Client) leave(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	if c.flights[key] == f {
		delete(c.flights, key)
		// a later caller must not join a request that is being cancelled
		c.group.Forget(key)
	}
	f.cancel()
}

func (c *Client) run(ctx context.Context, op string, fn func(context.Context) (any, error)) (any, error) {
	var out any
	attempt := 0
	err := c.retrier.RunCtx(ctx, func(ctx context.Context) error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		v, err := fn(actx)
		if err != nil {
			if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				err = &TimeoutError{Op: op, After: c.timeout}
			}
			log.Warn().Str("component", "source").Str("op", op).Int("attempt", attempt).Err(err).Msg("fetch failed")
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
