package target

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	ping "github.com/prometheus-community/pro-bing"
)

// Reconnect waits for the host to come back and re-dials it. retry is the
// number of attempts. With useBackoff the delay between attempts grows
// exponentially, otherwise it stays at the configured delay.
func (t *Target) Reconnect(ctx context.Context, retry int, useBackoff bool) error {
	if t.dial == nil {
		return fmt.Errorf("%s: %w", t.hostname, ErrNotReachable)
	}
	if t.State() == DryRun {
		t.log.Info().Msg("dryrun reconnect")
		return nil
	}

	var b backoff.BackOff
	if useBackoff {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = t.reconnectDelay
		eb.MaxElapsedTime = 0
		b = eb
	} else {
		b = backoff.NewConstantBackOff(t.reconnectDelay)
	}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(retry-1, 0))), ctx)

	// 给主机留出关机的时间
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.reconnectDelay):
	}

	attempt := 0
	op := func() error {
		attempt++
		if err := t.probe(ctx); err != nil {
			return err
		}
		exec, files, err := t.dial(ctx)
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.exec, t.files = exec, files
		t.mu.Unlock()
		return nil
	}
	notify := func(err error, next time.Duration) {
		t.log.Warn().Err(err).Int("attempt", attempt).Dur("next", next).Msg("reconnect failed")
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return fmt.Errorf("%s: reconnect after %d attempts: %w", t.hostname, attempt, err)
	}
	t.log.Info().Int("attempts", attempt).Msg("reconnected")
	return nil
}

// defaultProbe waits for an ICMP echo and falls back to a TCP connect to
// the ssh port when ICMP is not permitted.
func (t *Target) defaultProbe(ctx context.Context) error {
	host, port, err := net.SplitHostPort(t.address)
	if err != nil {
		host, port = t.address, "22"
	}

	pinger, err := ping.NewPinger(host)
	if err == nil {
		pinger.SetPrivileged(false)
		pinger.Count = 1
		pinger.Timeout = 2 * time.Second
		if err := pinger.RunWithContext(ctx); err == nil && pinger.Statistics().PacketsRecv > 0 {
			return nil
		}
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return fmt.Errorf("%s: %w: %v", t.hostname, ErrNotReachable, err)
	}
	return conn.Close()
}
