package query

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/internal/formula"
	"github.com/GregMSThompson/dashboard-service/internal/models"
)

// variableLimit bounds the concurrent queries of one formula.
const variableLimit = 4

// MetricDefinitions resolves custom metrics by id.
type MetricDefinitions interface {
	CustomMetric(ctx context.Context, id string) (*models.CustomMetric, error)
}

type MetricDefinitionsFunc func(ctx context.Context, id string) (*models.CustomMetric, error)

func (f MetricDefinitionsFunc) CustomMetric(ctx context.Context, id string) (*models.CustomMetric, error) {
	return f(ctx, id)
}

// WithCustomMetrics answers custom_<id> sources by querying every variable
// of the metric's formula through next, with the same window and filters,
// and evaluating it. Other sources go to next unchanged.
func WithCustomMetrics(next Fetcher, defs MetricDefinitions) Fetcher {
	if next == nil {
		next = noCredentials{}
	}
	return &customFetcher{next: next, defs: defs}
}

type customFetcher struct {
	next Fetcher
	defs MetricDefinitions
}

func (c *customFetcher) Query(ctx context.Context, req dto.QueryRequest) (dto.Payload, error) {
	id, ok := models.CustomMetricID(req.Source)
	if !ok {
		return c.next.Query(ctx, req)
	}
	m, err := c.defs.CustomMetric(ctx, id)
	if err != nil {
		return dto.Payload{}, err
	}
	if !m.IsActive {
		return dto.Payload{}, errs.NewNotFoundError("custom metric is inactive")
	}
	f, err := formula.Parse(m.Formula)
	if err != nil {
		return dto.Payload{}, errs.NewValidationError("invalid formula: " + err.Error())
	}

	current, previous, err := c.variables(ctx, req, f.Variables())
	if err != nil {
		return dto.Payload{}, err
	}
	value, err := f.Eval(current)
	if err != nil {
		return dto.Payload{}, errs.NewValidationError(err.Error())
	}

	out := &dto.MetricData{Value: round(value, 2), Subtext: m.Description}
	if out.Subtext == "" {
		out.Subtext = m.Name
	}
	if m.Unit == "$" {
		out.Prefix = m.Unit
	} else {
		out.Suffix = m.Unit
	}
	if previous != nil {
		if prev, err := f.Eval(previous); err == nil {
			prev = round(prev, 2)
			trend := trendPercent(out.Value, prev)
			out.Previous, out.Trend = &prev, &trend
		}
	}
	return dto.Payload{Metric: out}, nil
}

// variables queries each formula variable. previous is nil unless every
// variable reported a previous-period value. A variable without a metric
// counts as zero.
func (c *customFetcher) variables(ctx context.Context, req dto.QueryRequest, names []string) (current, previous map[string]float64, err error) {
	current = make(map[string]float64, len(names))
	previous = make(map[string]float64, len(names))
	complete := true
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(variableLimit)
	for _, name := range names {
		g.Go(func() error {
			sub := req
			sub.Source = name
			p, err := c.next.Query(gctx, sub)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if p.Metric == nil {
				current[name] = 0
				complete = false
				return nil
			}
			current[name] = p.Metric.Value
			if p.Metric.Previous == nil {
				complete = false
			} else {
				previous[name] = *p.Metric.Previous
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if !complete {
		previous = nil
	}
	return current, previous, nil
}

// trendPercent is the change against the previous period, one decimal.
// Without a previous value any positive result counts as +100%.
func trendPercent(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return round((current-previous)/previous*100, 1)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
