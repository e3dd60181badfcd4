package presenter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tanuki/pkg/event"
	"tanuki/pkg/transport"
)

// DefaultEditInterval is the minimum spacing between successful progress
// edits for one run.
const DefaultEditInterval = 2 * time.Second

// DefaultMaxLen is the default transport message size limit (Telegram's).
const DefaultMaxLen = 4096

// Sink is the render surface for one thread: post a new message or edit a
// previous one. Edit returns transport.ErrGone when the target message was
// deleted.
type Sink interface {
	Post(ctx context.Context, text string) (transport.MessageRef, error)
	Edit(ctx context.Context, ref transport.MessageRef, text string) error
}

// Result summarizes one presented run.
type Result struct {
	Answer    string
	Resume    *event.ResumeToken
	Truncated bool
	Ref       transport.MessageRef
}

// Presenter renders one run's event stream to a Sink. It is single-use.
type Presenter struct {
	sink         Sink
	logger       *slog.Logger
	editInterval time.Duration
	maxLen       int

	// OnToken, if set, is invoked as soon as a resume token becomes known,
	// before the run completes. The bridge uses it so replies to an in-flight
	// progress message can resolve to the run's session.
	OnToken func(event.ResumeToken)

	ref          *transport.MessageRef
	lastRendered string
	posted       bool
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithEditInterval overrides the minimum interval between progress edits.
func WithEditInterval(d time.Duration) Option {
	return func(p *Presenter) { p.editInterval = d }
}

// WithMaxLen overrides the transport message size limit.
func WithMaxLen(n int) Option {
	return func(p *Presenter) { p.maxLen = n }
}

// New creates a Presenter rendering to sink.
func New(sink Sink, logger *slog.Logger, opts ...Option) *Presenter {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Presenter{
		sink:         sink,
		logger:       logger,
		editInterval: DefaultEditInterval,
		maxLen:       DefaultMaxLen,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Present consumes events until the stream closes and renders progress plus a
// final message. formatResume renders the engine's own resume line for the
// footer (may be nil for engines without one). The final render always
// carries the scoped token when a token exists, even if the body must be
// truncated to fit.
func (p *Presenter) Present(ctx context.Context, engine string, formatResume func(event.ResumeToken) string, events <-chan event.Event) (Result, error) {
	tracker := NewTracker(engine)
	var completed *event.Completed
	var lastEdit time.Time
	dirty := false

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			changed := tracker.Note(ev)
			switch e := ev.(type) {
			case event.Started:
				if e.Resume != nil && p.OnToken != nil {
					p.OnToken(*e.Resume)
				}
				if !p.posted {
					p.post(ctx, renderProgress(tracker.Snapshot()))
					lastEdit = time.Now()
				}
			case event.Completed:
				c := e
				completed = &c
				// The translator guarantees this is the last event; keep
				// draining so the producer can close the channel.
			default:
				if changed && completed == nil {
					dirty = true
					if timerC == nil {
						wait := p.editInterval - time.Since(lastEdit)
						if wait < 0 {
							wait = 0
						}
						timer = time.NewTimer(wait)
						timerC = timer.C
					}
				}
			}

		case <-timerC:
			timerC = nil
			if dirty && completed == nil {
				dirty = false
				if wrote, _ := p.edit(ctx, renderProgress(tracker.Snapshot())); wrote {
					lastEdit = time.Now()
				}
			}

		case <-ctx.Done():
			// Cancellation closes the event stream shortly; stop editing and
			// wait for the terminal event.
			timerC = nil
		}
	}

	return p.finalize(ctx, tracker, formatResume, completed)
}

// finalize renders the terminal message.
func (p *Presenter) finalize(ctx context.Context, tracker *Tracker, formatResume func(event.ResumeToken) string, completed *event.Completed) (Result, error) {
	res := Result{}
	status := "✅ done"
	if completed == nil {
		// Stream ended without a terminal event (producer bug); treat as
		// truncated so the user still gets a final render.
		completed = &event.Completed{Resume: tracker.Resume(), Truncated: true}
	}
	res.Answer = completed.Answer
	res.Resume = completed.Resume
	res.Truncated = completed.Truncated
	if completed.Truncated {
		status = "⚠️ interrupted"
	}
	if res.Resume != nil && p.OnToken != nil {
		p.OnToken(*res.Resume)
	}

	resumeLine := ""
	if res.Resume != nil && formatResume != nil {
		resumeLine = formatResume(*res.Resume)
	}
	text := renderFinal(res.Answer, status, res.Resume, resumeLine, p.maxLen)

	var err error
	if p.ref == nil {
		err = p.postErr(ctx, text)
	} else if _, ok := p.edit(ctx, text); !ok {
		err = errors.New("final render failed")
	}
	if p.ref != nil {
		res.Ref = *p.ref
	}
	return res, err
}

// post sends the initial progress message, logging on failure. The run
// continues without a message reference; the final render posts fresh.
func (p *Presenter) post(ctx context.Context, text string) {
	if err := p.postErr(ctx, text); err != nil {
		p.logger.Warn("presenter: post failed", "err", err)
	}
}

func (p *Presenter) postErr(ctx context.Context, text string) error {
	ref, err := p.sink.Post(ctx, text)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	p.ref = &ref
	p.posted = true
	p.lastRendered = text
	return nil
}

// edit updates the progress message, skipping byte-identical renders and
// falling back to a fresh post when the message is gone. wrote reports
// whether a transport call actually went out, so callers measure the edit
// throttle from real edits only; ok reports overall success (an
// identical-skip is ok but not a write).
func (p *Presenter) edit(ctx context.Context, text string) (wrote, ok bool) {
	if p.ref == nil {
		p.post(ctx, text)
		return p.ref != nil, p.ref != nil
	}
	if text == p.lastRendered {
		return false, true
	}
	err := p.sink.Edit(ctx, *p.ref, text)
	if errors.Is(err, transport.ErrGone) {
		p.logger.Warn("presenter: message gone, posting fresh")
		p.ref = nil
		p.post(ctx, text)
		return p.ref != nil, p.ref != nil
	}
	if err != nil {
		// The user already has earlier partial progress; log only.
		p.logger.Warn("presenter: edit failed", "err", err)
		return false, false
	}
	p.lastRendered = text
	return true, true
}
