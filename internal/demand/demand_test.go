package demand

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jredh-dev/foodloop/internal/database"
	"github.com/jredh-dev/foodloop/pkg/models"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type staticHistory []models.DemandRow

func (h staticHistory) DemandByPincode(context.Context, string) ([]models.DemandRow, error) {
	return h, nil
}

type fakeForecaster struct {
	text string
	err  error
	got  []models.DemandTotal
}

func (f *fakeForecaster) Forecast(_ context.Context, _ string, top []models.DemandTotal) (string, error) {
	f.got = top
	return f.text, f.err
}

func row(name string, q int64, age time.Duration) models.DemandRow {
	return models.DemandRow{Name: name, Quantity: decimal.NewFromInt(q), CreatedAt: now.Add(-age)}
}

func total(name string, q int64) models.DemandTotal {
	return models.DemandTotal{Name: name, TotalQuantity: decimal.NewFromInt(q)}
}

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func newAggregator(h History, f Forecaster) *Aggregator {
	return New(h, f, logr.Discard(), Options{Now: func() time.Time { return now }})
}

func TestForecastRanksTotals(t *testing.T) {
	day := 24 * time.Hour
	h := staticHistory{row("A", 10, 3*day), row("B", 5, 2*day), row("A", 3, day)}
	f := &fakeForecaster{text: "Grow A."}

	got, err := newAggregator(h, f).Forecast(context.Background(), "411001")
	require.NoError(t, err)

	want := []models.DemandTotal{total("A", 13), total("B", 5)}
	if diff := cmp.Diff(want, got.TopItems, decimalEqual); diff != "" {
		t.Errorf("top items mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, SourceFullHistory, got.DataSource)
	assert.Equal(t, "Grow A.", got.Summary)
	assert.Len(t, f.got, 2)
}

func TestForecastWindow(t *testing.T) {
	day := 24 * time.Hour
	h := staticHistory{
		row("old", 100, 200*day),
		row("A", 2, 10*day),
		row("B", 7, 5*day),
	}
	got, err := newAggregator(h, &fakeForecaster{text: "ok"}).Forecast(context.Background(), "411001")
	require.NoError(t, err)

	assert.Equal(t, SourceWindowed, got.DataSource)
	want := []models.DemandTotal{total("B", 7), total("A", 2)}
	if diff := cmp.Diff(want, got.TopItems, decimalEqual); diff != "" {
		t.Errorf("top items mismatch (-want +got):\n%s", diff)
	}
}

func TestForecastMarkers(t *testing.T) {
	day := 24 * time.Hour
	f := &fakeForecaster{text: "unused"}

	got, err := newAggregator(staticHistory{}, f).Forecast(context.Background(), "411001")
	require.NoError(t, err)
	assert.Equal(t, SourceNone, got.DataSource)
	assert.Empty(t, got.TopItems)
	assert.Equal(t, noDataText, got.Summary)

	got, err = newAggregator(staticHistory{row("old", 1, 300*day)}, f).Forecast(context.Background(), "411001")
	require.NoError(t, err)
	assert.Equal(t, SourceNoneRecent, got.DataSource)
	assert.Empty(t, got.TopItems)
	assert.Nil(t, f.got, "oracle must not be asked without data")
}

func TestForecastOracleFailureKeepsNumbers(t *testing.T) {
	h := staticHistory{row("A", 4, time.Hour)}
	got, err := newAggregator(h, &fakeForecaster{err: models.ErrOracleUnavailable}).Forecast(context.Background(), "411001")
	require.NoError(t, err)
	assert.Equal(t, unavailableText, got.Summary)
	require.Len(t, got.TopItems, 1)
	assert.True(t, got.TopItems[0].TotalQuantity.Equal(decimal.NewFromInt(4)))
}

func TestForecastMissingPincode(t *testing.T) {
	_, err := newAggregator(staticHistory{}, &fakeForecaster{}).Forecast(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrMissingField)
}

type failingHistory struct{}

func (failingHistory) DemandByPincode(context.Context, string) ([]models.DemandRow, error) {
	return nil, errors.New("disk on fire")
}

func TestForecastStoreFailure(t *testing.T) {
	_, err := newAggregator(failingHistory{}, &fakeForecaster{}).Forecast(context.Background(), "411001")
	assert.ErrorContains(t, err, "disk on fire")
}

func TestRankTopNAndTies(t *testing.T) {
	rows := []models.DemandRow{
		row("a", 1, 0), row("b", 5, 0), row("c", 1, 0), row("d", 9, 0),
		row("e", 2, 0), row("f", 3, 0), row("g", 1, 0),
	}
	got := Rank(rows, 5)
	names := make([]string, len(got))
	for i, g := range got {
		names[i] = g.Name
	}
	assert.Equal(t, []string{"d", "b", "f", "e", "a"}, names)
}

func TestForecastFromStore(t *testing.T) {
	db, err := database.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	q := db.Queries()

	require.NoError(t, q.UpsertOwner(ctx, &models.Owner{ID: "r1", Pincode: "411001", UpdatedAt: now}))
	require.NoError(t, q.UpsertOwner(ctx, &models.Owner{ID: "r2", Pincode: "999999", UpdatedAt: now}))
	items := map[string]int64{}
	for _, s := range []struct{ owner, name string }{{"r1", "A"}, {"r1", "B"}, {"r2", "C"}} {
		food := &models.Food{Name: s.name, NameKey: s.name, Quantity: decimal.NewFromInt(50),
			BestBefore: now, ExpiresAt: now, Status: models.FoodStatusListing, CreatedAt: now}
		require.NoError(t, q.CreateFood(ctx, food))
		item := &models.InventoryItem{OwnerID: s.owner, FoodID: food.ID, CreatedAt: now}
		require.NoError(t, q.CreateItem(ctx, item))
		items[s.name] = item.ID
	}
	for _, r := range []struct {
		name string
		qty  int64
	}{{"A", 10}, {"B", 5}, {"A", 3}, {"C", 40}} {
		require.NoError(t, q.CreateRequest(ctx, &models.FoodRequest{
			InventoryItemID: items[r.name], RequesterID: "ngo", Quantity: decimal.NewFromInt(r.qty), CreatedAt: now,
		}))
	}

	got, err := newAggregator(q, &fakeForecaster{text: "ok"}).Forecast(ctx, "411001")
	require.NoError(t, err)
	want := []models.DemandTotal{total("A", 13), total("B", 5)}
	if diff := cmp.Diff(want, got.TopItems, decimalEqual); diff != "" {
		t.Errorf("top items mismatch (-want +got):\n%s", diff)
	}
}
