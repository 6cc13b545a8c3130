package session

import (
	"context"
	"time"

	qerrors "github.com/tradequorum/quorum-bot/internal/errors"
)

// connectWithRetry attempts broker initialization up to the configured
// retry count at a fixed interval. Exhausting the retries is terminal:
// the caller moves the session to ERROR.
func (c *Controller) connectWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ReconnectRetries; attempt++ {
		err := c.deps.Broker.Initialize(ctx)
		if err == nil {
			if attempt > 1 {
				c.log.Info().Int("attempt", attempt).Msg("broker connection restored")
			}
			return nil
		}
		lastErr = err
		c.log.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_retries", c.cfg.ReconnectRetries).
			Msg("broker connection attempt failed")

		if attempt == c.cfg.ReconnectRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
	terr := qerrors.Wrap(lastErr, qerrors.CategoryTerminal, "session", "connect")
	terr.Message = "broker unreachable after all reconnect attempts"
	return terr
}

// ensureReconnect launches a single background reconnect loop. While it
// runs, cycles skip; on success cycles resume, on exhaustion the
// session moves to ERROR.
func (c *Controller) ensureReconnect(ctx context.Context) {
	c.mu.Lock()
	if c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.reconnecting = false
			c.mu.Unlock()
		}()

		if err := c.connectWithRetry(ctx); err != nil {
			c.log.Error().Err(err).Msg("reconnect exhausted, session entering error state")
			c.transition(StatusError)
			if c.deps.Health != nil {
				c.deps.Health.AddError("broker disconnected: reconnect exhausted")
			}
			return
		}
		c.setConnected(true)
	}()
}
