package implicit

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// BlankURL is loaded into a frame before the silent authorization request.
const BlankURL = "about:blank"

// Frame is a hidden, non-interactive user agent owned by one renewal.
// Navigate loads url and blocks until the load completes, returning the
// frame's location afterwards (including its fragment).  Close may be called
// while a Navigate that ran out of time is still in flight.
type Frame interface {
	Navigate(ctx context.Context, url string) (location string, err error)
	Close() error
}

// FrameOpener creates the hidden frames used by Driver.BackgroundLogin.
type FrameOpener interface {
	OpenFrame(ctx context.Context) (Frame, error)
}

type renewalPhase int

const (
	phaseIdle renewalPhase = iota
	phaseAwaitingBlankLoad
	phaseAwaitingAuthLoad
	phaseDone
	phaseFailed
)

func (p renewalPhase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseAwaitingBlankLoad:
		return "awaiting-blank-load"
	case phaseAwaitingAuthLoad:
		return "awaiting-auth-load"
	case phaseDone:
		return "done"
	case phaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// renewal tracks one BackgroundLogin through its frame loads.
type renewal struct {
	phase  renewalPhase
	frame  Frame
	logger hclog.Logger
}

func (r *renewal) transition(to renewalPhase) {
	r.logger.Trace("renewal transition", "from", r.phase, "to", to)
	r.phase = to
}

type navigation struct {
	location string
	err      error
}

// await navigates the frame and waits, at most until ctx is done, for the
// load to complete.
func (r *renewal) await(ctx context.Context, url string) (string, error) {
	const op = "renewal.await"
	ch := make(chan navigation, 1)
	go func() {
		loc, err := r.frame.Navigate(ctx, url)
		ch <- navigation{location: loc, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %s: %s: %w", op, r.phase, ctx.Err(), ErrRenewalTimeout)
	case n := <-ch:
		if n.err != nil {
			if errors.Is(n.err, context.DeadlineExceeded) {
				return "", fmt.Errorf("%s: %s: %s: %w", op, r.phase, n.err, ErrRenewalTimeout)
			}
			return "", fmt.Errorf("%s: %s: %s: %w", op, r.phase, n.err, ErrRenewalFailed)
		}
		return n.location, nil
	}
}

// BackgroundLogin silently renews the token.  A hidden frame is loaded with
// BlankURL and then with a prompt=none login URI; the frame's resulting
// fragment is consumed like Init does.  If the provider answers with an error
// (or something unparsable) BackgroundLogin falls back to an interactive
// Login and returns ("", nil), since control is expected to leave the page.
//
// Each frame load is bounded by the renewal timeout and ctx.  The frame is
// closed on every path.  Only one BackgroundLogin runs at a time per Driver.
func (d *Driver) BackgroundLogin(ctx context.Context) (string, error) {
	const op = "Driver.BackgroundLogin"
	if d.frames == nil {
		return "", fmt.Errorf("%s: frame opener is nil: %w", op, ErrNilParameter)
	}
	d.renewMu.Lock()
	defer d.renewMu.Unlock()

	r := &renewal{phase: phaseIdle, logger: d.logger.Named("renewal")}

	openCtx, cancel := context.WithTimeout(ctx, d.timeout)
	frame, err := d.frames.OpenFrame(openCtx)
	cancel()
	if err != nil {
		r.transition(phaseFailed)
		return "", fmt.Errorf("%s: unable to open frame: %s: %w", op, err, ErrRenewalFailed)
	}
	r.frame = frame
	defer func() {
		if err := frame.Close(); err != nil {
			r.logger.Warn("unable to close frame", "error", err)
		}
	}()

	r.transition(phaseAwaitingBlankLoad)
	blankCtx, cancel := context.WithTimeout(ctx, d.timeout)
	_, err = r.await(blankCtx, BlankURL)
	cancel()
	if err != nil {
		r.transition(phaseFailed)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	loginURI, err := d.MakeLoginURI(ctx, true)
	if err != nil {
		r.transition(phaseFailed)
		return "", fmt.Errorf("%s: %w", op, err)
	}
	r.transition(phaseAwaitingAuthLoad)
	authCtx, cancel := context.WithTimeout(ctx, d.timeout)
	loc, err := r.await(authCtx, loginURI)
	cancel()
	if err != nil {
		r.transition(phaseFailed)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	f, parseErr := FragmentFromURL(loc)
	desc, providerErr := f.ErrorDescription()
	if parseErr != nil || f == nil || providerErr {
		r.transition(phaseFailed)
		r.logger.Info("silent renewal failed, falling back to interactive login", "error_description", desc, "parse_error", parseErr)
		if err := d.Login(ctx, false); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		return "", nil
	}

	tk, err := d.consume(ctx, f)
	if err != nil {
		r.transition(phaseFailed)
		return "", fmt.Errorf("%s: %w", op, err)
	}
	r.transition(phaseDone)
	return tk, nil
}
