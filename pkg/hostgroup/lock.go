package hostgroup

import (
	"context"
	"errors"
	"time"

	"example.com/mtui/pkg/target"
)

// Lock locks every member. Hosts held by other sessions are logged and
// skipped.
func (g *HostsGroup) Lock(ctx context.Context, comment string) error {
	var errs []error
	for _, name := range g.Names() {
		err := g.targets[name].Lock(ctx, comment)
		var locked *target.LockedError
		switch {
		case errors.As(err, &locked):
			g.warnLocked(name, locked.Status)
		case err != nil:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unlock releases every member. Locks of other sessions are left alone
// unless force is set.
func (g *HostsGroup) Unlock(ctx context.Context, force bool) error {
	var errs []error
	for _, name := range g.Names() {
		err := g.targets[name].Unlock(ctx, force)
		var locked *target.LockedError
		switch {
		case errors.As(err, &locked):
			g.warnLocked(name, locked.Status)
		case err != nil:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *HostsGroup) warnLocked(host string, st target.Status) {
	g.log.Warn().Str("host", host).Str("owner", st.Owner).
		Str("since", st.Since.Format(time.DateTime)).
		Msgf("host %s is locked by %s. skipping.", host, st.Owner)
	if st.Comment != "" {
		g.log.Info().Str("host", host).Msgf("%s's comment: %s", st.Owner, st.Comment)
	}
}

// updateLock locks every member for a mutating workflow. If any host is
// held by another session, or its lock cannot be read, the locks taken so
// far are released and *HostsLockedError is returned. Each lock taken
// adds one worker to the staging queue.
func (g *HostsGroup) updateLock(ctx context.Context, comment string) error {
	var skipped []LockedHost
	var acquired []string

	for _, name := range g.Names() {
		if err := cancelled(ctx); err != nil {
			g.release(ctx, acquired)
			return err
		}
		t := g.targets[name]
		st, err := t.LockStatus(ctx)
		if err != nil {
			g.log.Error().Err(err).Str("host", name).Msg("cannot read lock")
			skipped = append(skipped, LockedHost{Host: name, Err: err})
			continue
		}
		if st.Locked && !st.Mine {
			g.warnLocked(name, st)
			skipped = append(skipped, LockedHost{Host: name, Status: st})
			continue
		}
		if err := t.Lock(ctx, comment); err != nil {
			var locked *target.LockedError
			if errors.As(err, &locked) {
				g.warnLocked(name, locked.Status)
				skipped = append(skipped, LockedHost{Host: name, Status: locked.Status})
			} else {
				g.log.Error().Err(err).Str("host", name).Msg("cannot lock")
				skipped = append(skipped, LockedHost{Host: name, Err: err})
			}
			continue
		}
		acquired = append(acquired, name)
		g.queue.Grow(1)
	}

	if len(skipped) > 0 {
		g.release(ctx, acquired)
		return &HostsLockedError{Hosts: skipped}
	}
	return nil
}

// release unlocks the named hosts even when ctx is already cancelled.
func (g *HostsGroup) release(ctx context.Context, names []string) {
	ctx = context.WithoutCancel(ctx)
	for _, name := range names {
		err := g.targets[name].Unlock(ctx, false)
		var locked *target.LockedError
		switch {
		case errors.As(err, &locked):
			g.warnLocked(name, locked.Status)
		case err != nil:
			g.log.Error().Err(err).Str("host", name).Msg("cannot unlock")
		}
	}
}

func (g *HostsGroup) unlockAll(ctx context.Context) {
	g.release(ctx, g.Names())
}
