package geofence

import (
	"context"
	"log/slog"
	"time"
)

// Mode is how the runner is currently obtaining positions.
type Mode string

const (
	ModeWatching Mode = "watching"
	ModePolling  Mode = "polling"
	ModeDisabled Mode = "disabled"
)

// Runner drives a Detector from a Provider, preferring continuous watch
// updates and degrading to periodic polling, and finally to disabled
// (manual check-in only) when the sensor is unusable. It runs
// single-threaded per device: one goroutine owns sample processing, and
// events go out on a buffered channel that is never blocked on.
type Runner struct {
	Provider     Provider
	Detector     *Detector
	PollInterval time.Duration
	Logger       *slog.Logger

	// OnDegraded is called at most once per failure mode so the UI can
	// surface manual mode without alert fatigue. Timeouts are retried
	// silently and never reported.
	OnDegraded func(err error)

	mode         Mode
	reportedFail bool
}

// Mode returns the runner's current acquisition mode. Meaningful once Run
// has started.
func (r *Runner) Mode() Mode {
	return r.mode
}

// Run starts sample processing and returns the advisory event stream. The
// channel closes when ctx is cancelled or detection is disabled.
func (r *Runner) Run(ctx context.Context) <-chan Event {
	if r.PollInterval <= 0 {
		r.PollInterval = 30 * time.Second
	}
	events := make(chan Event, 16)
	go r.loop(ctx, events)
	return events
}

func (r *Runner) loop(ctx context.Context, events chan<- Event) {
	defer close(events)

	samples, err := r.Provider.Watch(ctx)
	if err == nil {
		r.mode = ModeWatching
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-samples:
				if !ok {
					// Watch stream died; fall back to polling.
					r.poll(ctx, events)
					return
				}
				r.handle(s, events)
			}
		}
	}

	if fatal(err) {
		r.disable(err)
		return
	}
	if r.Logger != nil {
		r.Logger.Warn("continuous position updates unavailable, polling instead", "error", err)
	}
	r.poll(ctx, events)
}

func (r *Runner) poll(ctx context.Context, events chan<- Event) {
	r.mode = ModePolling

	// Take one reading immediately so the user is not waiting a full
	// interval after the fallback kicks in.
	if !r.pollOnce(ctx, events) {
		return
	}

	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.pollOnce(ctx, events) {
				return
			}
		}
	}
}

// pollOnce returns false when polling should stop for good.
func (r *Runner) pollOnce(ctx context.Context, events chan<- Event) bool {
	s, err := r.Provider.Current(ctx)
	if err != nil {
		if fatal(err) {
			r.disable(err)
			return false
		}
		// Timeouts and transient failures retry silently on the next tick.
		return true
	}
	r.handle(s, events)
	return true
}

func (r *Runner) handle(s Sample, events chan<- Event) {
	ev := r.Detector.Observe(s)
	if ev == nil {
		return
	}
	select {
	case events <- *ev:
	default:
		// The consumer is behind; dropping an advisory event beats
		// stalling sample processing.
		if r.Logger != nil {
			r.Logger.Warn("dropping geofence event, consumer not keeping up", "type", ev.Type, "venue_id", ev.VenueID)
		}
	}
}

func (r *Runner) disable(err error) {
	r.mode = ModeDisabled
	if r.reportedFail {
		return
	}
	r.reportedFail = true
	if r.Logger != nil {
		r.Logger.Warn("geofence detection disabled, manual check-in only", "error", err)
	}
	if r.OnDegraded != nil {
		r.OnDegraded(err)
	}
}
