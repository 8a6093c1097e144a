package query

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/internal/filters"
	"github.com/GregMSThompson/dashboard-service/internal/models"
	"github.com/GregMSThompson/dashboard-service/pkg/logger"
)

// Fetcher executes one composed query against the analytics service.
type Fetcher interface {
	Query(ctx context.Context, req dto.QueryRequest) (dto.Payload, error)
}

type Status string

const (
	StatusLoading Status = "loading"
	StatusError   Status = "error"
	StatusEmpty   Status = "empty"
	StatusReady   Status = "ready"
)

// ViewState is what a widget currently shows, stamped with the sequence
// number of the composition that produced it.
type ViewState struct {
	Status    Status       `json:"status"`
	Message   string       `json:"message,omitempty"`
	Retryable bool         `json:"retryable,omitempty"`
	Payload   *dto.Payload `json:"payload,omitempty"`
	Seq       uint64       `json:"seq"`
}

// Runner executes the queries of one widget. Every composition gets the next
// sequence number and only the response to the latest one is applied;
// superseded responses are dropped when they arrive, not cancelled.
type Runner struct {
	widget  models.Widget
	fetcher Fetcher
	now     func() time.Time

	mu       sync.Mutex
	seq      uint64
	last     dto.QueryRequest
	state    ViewState
	inflight int
	idle     chan struct{}
}

type Option func(*Runner)

// WithClock overrides the clock used to anchor date windows.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner builds the runner for w. A nil Fetcher behaves like a caller
// without credentials.
func NewRunner(w models.Widget, f Fetcher, opts ...Option) *Runner {
	if f == nil {
		f = noCredentials{}
	}
	idle := make(chan struct{})
	close(idle)
	r := &Runner{
		widget:  w,
		fetcher: f,
		now:     time.Now,
		state:   ViewState{Status: StatusLoading},
		idle:    idle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Widget() models.Widget { return r.widget }

func (r *Runner) State() ViewState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Request returns the most recently issued composition.
func (r *Runner) Request() dto.QueryRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Refresh composes a new query from snap and issues it, returning its
// sequence number. The widget shows Loading until the response lands.
func (r *Runner) Refresh(ctx context.Context, snap filters.Snapshot) uint64 {
	return r.issue(ctx, Compose(r.widget, snap, r.now()))
}

// Retry reissues the last composition unchanged.
func (r *Runner) Retry(ctx context.Context) uint64 {
	r.mu.Lock()
	req := r.last
	r.mu.Unlock()
	return r.issue(ctx, req)
}

// Wait blocks until no query is in flight or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	idle := r.idle
	r.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) issue(ctx context.Context, req dto.QueryRequest) uint64 {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.last = req
	r.state = ViewState{Status: StatusLoading, Seq: seq}
	if r.inflight == 0 {
		r.idle = make(chan struct{})
	}
	r.inflight++
	r.mu.Unlock()

	go r.fetch(ctx, seq, req)
	return seq
}

func (r *Runner) fetch(ctx context.Context, seq uint64, req dto.QueryRequest) {
	defer r.done()
	log, ctx := logger.With(ctx, "widget_id", r.widget.ID, "source", req.Source, "seq", seq)

	payload, err := r.fetcher.Query(ctx, req)
	if ctx.Err() != nil {
		return
	}
	next := r.resolve(ctx, seq, payload, err)
	if err := r.apply(next); err != nil {
		log.Debug("discarding superseded response")
		return
	}
	log.Debug("widget state updated", "status", next.Status)
}

func (r *Runner) resolve(ctx context.Context, seq uint64, payload dto.Payload, err error) ViewState {
	switch {
	case errors.Is(err, errs.ErrNoCredentials):
		return ViewState{Status: StatusEmpty, Message: "Sign in to load " + r.widget.Title, Seq: seq}
	case err != nil:
		logger.FromContext(ctx).Warn("widget query failed", "error", err)
		return ViewState{Status: StatusError, Message: failureMessage(r.widget, err), Retryable: true, Seq: seq}
	case payload.IsEmpty():
		return ViewState{Status: StatusEmpty, Message: "No data for " + r.widget.Title, Seq: seq}
	}
	return ViewState{Status: StatusReady, Payload: &payload, Seq: seq}
}

// apply stores next unless a newer composition has been issued since.
func (r *Runner) apply(next ViewState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if next.Seq != r.seq {
		return errs.ErrStale
	}
	r.state = next
	return nil
}

func (r *Runner) done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight--
	if r.inflight == 0 {
		close(r.idle)
	}
}

type noCredentials struct{}

func (noCredentials) Query(context.Context, dto.QueryRequest) (dto.Payload, error) {
	return dto.Payload{}, errs.ErrNoCredentials
}

func failureMessage(w models.Widget, err error) string {
	var ext *errs.ExternalServiceError
	if errors.As(err, &ext) && ext.Message != "" {
		return ext.Message
	}
	return "Failed to load " + w.Title
}
