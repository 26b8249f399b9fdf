// Package stats fetches summary KPIs and daily series for a store.
//
// Analytics failures never reach the view. A fetch that fails resolves to a
// deterministic placeholder, and the Result's Kind records why, so callers
// and tests can tell real data from masked failures.
package stats

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/roach88/xenodash/internal/api"
	"github.com/roach88/xenodash/internal/model"
)

// Source is the backend surface the aggregator reads from.
type Source interface {
	Summary(ctx context.Context, storeID int, token string) (model.Snapshot, error)
	RevenueSeries(ctx context.Context, storeID int, token string, r model.DateRange) (model.Series, error)
	OrdersSeries(ctx context.Context, storeID int, token string, r model.DateRange) (model.Series, error)
}

// Aggregator performs the three analytics fetches. It holds no cache: every
// call goes to the backend.
type Aggregator struct {
	src Source
	log logrus.FieldLogger
}

// New creates an aggregator over src. A nil logger uses the standard logger.
func New(src Source, log logrus.FieldLogger) *Aggregator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Aggregator{src: src, log: log}
}

// FetchSummary fetches the KPI snapshot for a store.
func (a *Aggregator) FetchSummary(ctx context.Context, storeID int, token string) Result[model.Snapshot] {
	snap, err := a.src.Summary(ctx, storeID, token)
	if err == nil {
		return Result[model.Snapshot]{Value: snap, Kind: Live}
	}
	kind := classify(err)
	a.masked(MetricSummary, storeID, kind, err)
	return Result[model.Snapshot]{Value: PlaceholderSnapshot(), Kind: kind, Err: err}
}

// FetchRevenue fetches daily revenue for a store over r.
func (a *Aggregator) FetchRevenue(ctx context.Context, storeID int, token string, r model.DateRange) Result[model.Series] {
	s, err := a.src.RevenueSeries(ctx, storeID, token, r)
	if err == nil {
		return Result[model.Series]{Value: s, Kind: Live}
	}
	kind := classify(err)
	a.masked(MetricRevenue, storeID, kind, err)
	return Result[model.Series]{Value: PlaceholderRevenue(r), Kind: kind, Err: err}
}

// FetchOrders fetches daily order counts for a store over r.
func (a *Aggregator) FetchOrders(ctx context.Context, storeID int, token string, r model.DateRange) Result[model.Series] {
	s, err := a.src.OrdersSeries(ctx, storeID, token, r)
	if err == nil {
		return Result[model.Series]{Value: s, Kind: Live}
	}
	kind := classify(err)
	a.masked(MetricOrders, storeID, kind, err)
	return Result[model.Series]{Value: PlaceholderOrders(r), Kind: kind, Err: err}
}

func (a *Aggregator) masked(m Metric, storeID int, kind Kind, err error) {
	a.log.WithFields(logrus.Fields{
		"metric":   string(m),
		"store_id": storeID,
		"kind":     kind.String(),
	}).WithError(err).Warn("using placeholder data")
}

// classify maps a fetch error to the placeholder kind.
func classify(err error) Kind {
	if _, ok := api.AsHTTP(err); ok {
		return BackendError
	}
	return Degraded
}
