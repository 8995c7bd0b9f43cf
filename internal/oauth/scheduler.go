package oauth

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// refreshLookahead is how far ahead of expiry the scheduler proactively
// refreshes, so a burst of concurrent requests rarely all race the lazy
// refresh inside AccessToken.
const refreshLookahead = 2 * time.Minute

// StartRefreshScheduler launches a background loop that checks, on a
// "every minute" cron expression evaluated by gronx, whether the stored
// credential is within refreshLookahead of expiring, and if so calls
// AccessToken to trigger the same refresh path a request would. This is
// a pure latency optimization: it does not change the documented
// last-writer-wins storage semantics, and failures are logged, never
// propagated. Returns a cancel func; the loop exits when ctx is done or
// cancel is called. A non-positive interval disables the scheduler.
func (m *Manager) StartRefreshScheduler(ctx context.Context, interval time.Duration) context.CancelFunc {
	if interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	expr := "* * * * *" // every minute

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				due, err := gronx.IsDue(expr, t)
				if err != nil || !due {
					continue
				}
				m.maybeRefreshAhead(ctx)
			}
		}
	}()

	return cancel
}

func (m *Manager) maybeRefreshAhead(ctx context.Context) {
	cred, err := m.store.Get(ctx, DefaultKey)
	if err != nil || !cred.IsOAuth() {
		return
	}
	if cred.Expires-refreshLookahead.Milliseconds() > nowMillis() {
		return // not close to expiry yet
	}
	if _, ok := m.AccessToken(ctx); !ok {
		slog.Warn("oauth.scheduled_refresh_failed")
	}
}
