package content

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RequestBudget paces GitHub API calls against the rate limit reported in
// response headers. Callers Acquire before each request and feed every
// response back through UpdateFromResponse.
type RequestBudget struct {
	mu        sync.Mutex
	remaining int
	reset     time.Time
	cooldown  time.Time
	probed    bool
	now       func() time.Time
	changed   chan struct{}
}

// NewRequestBudget starts from the authenticated REST allowance until the
// first response says otherwise.
func NewRequestBudget() *RequestBudget {
	return &RequestBudget{
		remaining: 5000,
		reset:     time.Now().Add(time.Hour),
		now:       time.Now,
		changed:   make(chan struct{}),
	}
}

func (b *RequestBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Acquire blocks until n requests may be sent or ctx ends.
func (b *RequestBudget) Acquire(ctx context.Context, n int) error {
	switch {
	case ctx == nil:
		return fmt.Errorf("acquire: nil context")
	case n <= 0:
		return fmt.Errorf("acquire: n must be > 0 (got %d)", n)
	case b == nil || b.now == nil || b.changed == nil:
		return fmt.Errorf("acquire: budget not initialized (use NewRequestBudget)")
	}
	for i := 0; i < n; i++ {
		if err := b.acquireOne(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *RequestBudget) acquireOne(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.now()
		ch := b.changed

		var wait time.Duration
		switch {
		case now.Before(b.cooldown):
			// Retry-After in effect.
			wait = b.cooldown.Sub(now)
		case b.remaining > 0:
			b.remaining--
			b.mu.Unlock()
			return nil
		case !now.Before(b.reset):
			// The window has reset but no fresh headers have arrived: let one
			// probe through, then wait for its response.
			if !b.probed {
				b.probed = true
				b.mu.Unlock()
				return nil
			}
			wait = -1
		default:
			wait = b.reset.Sub(now)
		}
		b.mu.Unlock()

		if err := waitFor(ctx, ch, wait); err != nil {
			return err
		}
	}
}

// waitFor blocks until ch closes, d elapses (d < 0 means no timer) or ctx ends.
func waitFor(ctx context.Context, ch <-chan struct{}, d time.Duration) error {
	if d < 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
	case <-timer.C:
	}
	return nil
}

// UpdateFromResponse applies Retry-After and X-RateLimit-* headers and wakes
// waiters when anything changed.
func (b *RequestBudget) UpdateFromResponse(resp *http.Response) {
	if resp == nil || b == nil || b.now == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false
	if secs, ok := headerInt(resp, "Retry-After"); ok && secs > 0 {
		if until := b.now().Add(time.Duration(secs) * time.Second); until.After(b.cooldown) {
			b.cooldown = until
			changed = true
		}
	}
	if rem, ok := headerInt(resp, "X-RateLimit-Remaining"); ok && rem >= 0 && rem != int64(b.remaining) {
		b.remaining = int(rem)
		changed = true
	}
	if reset, ok := headerInt(resp, "X-RateLimit-Reset"); ok && reset > 0 {
		if t := time.Unix(reset, 0); !b.reset.Equal(t) {
			b.reset = t
			changed = true
		}
	}

	if changed {
		b.probed = false
		close(b.changed)
		b.changed = make(chan struct{})
	}
}

func headerInt(resp *http.Response, name string) (int64, bool) {
	v := resp.Header.Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}
