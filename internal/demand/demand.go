// Package demand summarizes historical NGO requests per region and asks
// the forecast oracle to narrate them for farmers.
package demand

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"

	"github.com/jredh-dev/foodloop/pkg/models"
)

// Data source markers.
const (
	SourceNone        = "none"
	SourceNoneRecent  = "none_recent"
	SourceWindowed    = "windowed"
	SourceFullHistory = "full_history"
)

const (
	noDataText       = "No market data available for this region."
	noRecentDataText = "No recent market data available for analysis."
	unavailableText  = "Forecast unavailable right now. The numbers above are still current."
)

// History loads the request rows for a pincode.
type History interface {
	DemandByPincode(ctx context.Context, pincode string) ([]models.DemandRow, error)
}

// Forecaster narrates ranked totals.
type Forecaster interface {
	Forecast(ctx context.Context, pincode string, top []models.DemandTotal) (string, error)
}

// Forecast is the result handed to farmers.
type Forecast struct {
	TopItems   []models.DemandTotal `json:"top_demanded_foods"`
	Summary    string               `json:"demand_forecast_text"`
	DataSource string               `json:"data_source"`
}

// Options configures an Aggregator.
type Options struct {
	WindowDays int
	TopN       int
	Now        func() time.Time
}

// Aggregator computes regional demand.
type Aggregator struct {
	history    History
	forecaster Forecaster
	log        logr.Logger
	opts       Options
}

// New creates an Aggregator. Zero options fall back to a 120 day window and top 5.
func New(history History, forecaster Forecaster, log logr.Logger, opts Options) *Aggregator {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 120
	}
	if opts.TopN <= 0 {
		opts.TopN = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{history: history, forecaster: forecaster, log: log, opts: opts}
}

// Forecast ranks demand in pincode. Only a missing pincode or a store
// failure is an error; oracle trouble degrades to a placeholder summary.
func (a *Aggregator) Forecast(ctx context.Context, pincode string) (*Forecast, error) {
	pincode = strings.TrimSpace(pincode)
	if pincode == "" {
		return nil, fmt.Errorf("%w: pincode", models.ErrMissingField)
	}
	rows, err := a.history.DemandByPincode(ctx, pincode)
	if err != nil {
		return nil, fmt.Errorf("load demand: %w", err)
	}
	if len(rows) == 0 {
		return &Forecast{TopItems: []models.DemandTotal{}, Summary: noDataText, DataSource: SourceNone}, nil
	}

	cutoff := a.opts.Now().UTC().AddDate(0, 0, -a.opts.WindowDays)
	source := SourceFullHistory
	if oldest(rows).Before(cutoff) {
		source = SourceWindowed
		rows = since(rows, cutoff)
		if len(rows) == 0 {
			return &Forecast{TopItems: []models.DemandTotal{}, Summary: noRecentDataText, DataSource: SourceNoneRecent}, nil
		}
	}

	top := Rank(rows, a.opts.TopN)
	summary, err := a.forecaster.Forecast(ctx, pincode, top)
	if err != nil {
		a.log.Info("forecast oracle failed, returning totals only", "pincode", pincode, "error", err.Error())
		summary = unavailableText
	}
	return &Forecast{TopItems: top, Summary: summary, DataSource: source}, nil
}

// Rank sums quantity per name and returns the n largest totals. Equal
// totals keep the order in which their names first appeared.
func Rank(rows []models.DemandRow, n int) []models.DemandTotal {
	index := make(map[string]int)
	var totals []models.DemandTotal
	for _, r := range rows {
		i, ok := index[r.Name]
		if !ok {
			i = len(totals)
			index[r.Name] = i
			totals = append(totals, models.DemandTotal{Name: r.Name, TotalQuantity: decimal.Zero})
		}
		totals[i].TotalQuantity = totals[i].TotalQuantity.Add(r.Quantity)
	}
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].TotalQuantity.GreaterThan(totals[j].TotalQuantity)
	})
	if len(totals) > n {
		totals = totals[:n]
	}
	return totals
}

func oldest(rows []models.DemandRow) time.Time {
	min := rows[0].CreatedAt
	for _, r := range rows[1:] {
		if r.CreatedAt.Before(min) {
			min = r.CreatedAt
		}
	}
	return min
}

func since(rows []models.DemandRow, cutoff time.Time) []models.DemandRow {
	var out []models.DemandRow
	for _, r := range rows {
		if !r.CreatedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
