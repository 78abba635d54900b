// Package oracle wraps the generative model that estimates shelf life for
// new foods and narrates regional demand for farmers.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jredh-dev/foodloop/internal/metrics"
	"github.com/jredh-dev/foodloop/pkg/models"
)

// Generator turns a prompt into model text.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, model, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, model, prompt string) (string, error) {
	return f(ctx, model, prompt)
}

// Estimate is a shelf-life answer for one food.
type Estimate struct {
	BestBefore time.Time
	ExpiresAt  time.Time
}

const (
	minBestBeforeDays = 7
	minShelfDays      = 14
	// errorSentinel is the prefix the model uses to decline.
	errorSentinel = "ERROR:"
	isoLayout     = "2006-01-02T15:04:05"
)

var estimatePattern = regexp.MustCompile(
	`best_before:\s*(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}),\s*expires_at:\s*(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})`)

// ParseEstimate extracts the two timestamps from model output. Timestamps
// carry no zone and are read as UTC.
func ParseEstimate(text string) (Estimate, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, errorSentinel) {
		return Estimate{}, fmt.Errorf("%w: %s", models.ErrInvalidEstimate, text)
	}
	m := estimatePattern.FindStringSubmatch(text)
	if m == nil {
		return Estimate{}, fmt.Errorf("%w: unexpected format %q", models.ErrInvalidEstimate, text)
	}
	bb, err := time.Parse(isoLayout, m[1])
	if err != nil {
		return Estimate{}, fmt.Errorf("%w: best_before: %v", models.ErrInvalidEstimate, err)
	}
	ex, err := time.Parse(isoLayout, m[2])
	if err != nil {
		return Estimate{}, fmt.Errorf("%w: expires_at: %v", models.ErrInvalidEstimate, err)
	}
	return Estimate{BestBefore: bb, ExpiresAt: ex}, nil
}

// Validate checks the estimate against today (UTC): the best-before date
// must be at least 7 days out and expiry at least 14 days after best-before.
func (e Estimate) Validate(today time.Time) error {
	today = today.UTC()
	floor := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, minBestBeforeDays)
	bbDate := time.Date(e.BestBefore.Year(), e.BestBefore.Month(), e.BestBefore.Day(), 0, 0, 0, 0, time.UTC)
	if bbDate.Before(floor) {
		return fmt.Errorf("%w: best_before %s is before %s",
			models.ErrInvalidEstimate, e.BestBefore.Format(isoLayout), floor.Format("2006-01-02"))
	}
	if e.ExpiresAt.Before(e.BestBefore.AddDate(0, 0, minShelfDays)) {
		return fmt.Errorf("%w: expires_at %s is less than %d days after best_before",
			models.ErrInvalidEstimate, e.ExpiresAt.Format(isoLayout), minShelfDays)
	}
	return nil
}

// ShelfLife asks the model for best-before and expiry dates.
type ShelfLife struct {
	gen     Generator
	model   string
	timeout time.Duration
}

// NewShelfLife creates a shelf-life estimator. A zero timeout disables the deadline.
func NewShelfLife(gen Generator, model string, timeout time.Duration) *ShelfLife {
	return &ShelfLife{gen: gen, model: model, timeout: timeout}
}

// EstimateShelfLife returns dates for name at locale. Transport failures and
// timeouts are models.ErrOracleUnavailable; anything unusable in the answer
// is models.ErrInvalidEstimate.
func (s *ShelfLife) EstimateShelfLife(ctx context.Context, name, locale string, today time.Time) (Estimate, error) {
	text, err := s.call(ctx, "shelf_life", shelfLifePrompt(name, locale, today))
	if err != nil {
		return Estimate{}, err
	}
	est, err := ParseEstimate(text)
	if err != nil {
		return Estimate{}, err
	}
	if err := est.Validate(today); err != nil {
		return Estimate{}, err
	}
	return est, nil
}

func (s *ShelfLife) call(ctx context.Context, oracle, prompt string) (string, error) {
	return call(ctx, s.gen, oracle, s.model, prompt, s.timeout)
}

func call(ctx context.Context, gen Generator, oracle, model, prompt string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	text, err := gen.Generate(ctx, model, prompt)
	switch {
	case err == nil:
		metrics.RecordOracleCall(oracle, "ok", time.Since(start))
		return text, nil
	case errors.Is(err, models.ErrOracleUnavailable):
		metrics.RecordOracleCall(oracle, "unavailable", time.Since(start))
		return "", err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		metrics.RecordOracleCall(oracle, "timeout", time.Since(start))
		return "", fmt.Errorf("%w: timed out after %s", models.ErrOracleUnavailable, timeout)
	default:
		metrics.RecordOracleCall(oracle, "error", time.Since(start))
		return "", fmt.Errorf("%w: %v", models.ErrOracleUnavailable, err)
	}
}

func shelfLifePrompt(name, locale string, today time.Time) string {
	today = today.UTC()
	floor := today.AddDate(0, 0, minBestBeforeDays)
	return fmt.Sprintf("Given a food item '%s' and the location '%s', provide 'best_before' and 'expires_at' dates "+
		"in the exact format 'best_before:YYYY-MM-DDTHH:MM:SS, expires_at:YYYY-MM-DDTHH:MM:SS'. "+
		"The 'best_before' date must be at least 7 days after %s (so %s or later) and 'expires_at' must be "+
		"at least 14 days after 'best_before'. Use 12:00:00 for the time unless another time is clearly relevant. "+
		"Reply with nothing outside that format. If you cannot produce dates meeting these rules, reply "+
		"'ERROR: Unable to generate valid dates'.",
		name, locale, today.Format("2006-01-02"), floor.Format("2006-01-02"))
}
