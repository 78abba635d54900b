package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jredh-dev/foodloop/internal/database"
	"github.com/jredh-dev/foodloop/internal/events"
	"github.com/jredh-dev/foodloop/internal/oracle"
	"github.com/jredh-dev/foodloop/pkg/models"
)

var now = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

// scriptedGen answers every prompt with text after an optional delay.
type scriptedGen struct {
	text  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (g *scriptedGen) Generate(ctx context.Context, _, _ string) (string, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	return g.text, g.err
}

type recordingPublisher struct {
	mu   sync.Mutex
	evts []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evts ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evts = append(p.evts, evts...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

const validAnswer = "best_before:2026-03-11T12:00:00, expires_at:2026-03-31T12:00:00"

func setup(t *testing.T, gen oracle.Generator) (*Reconciler, *database.DB, *recordingPublisher) {
	t.Helper()
	db, err := database.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pub := &recordingPublisher{}
	est := oracle.NewShelfLife(gen, "test-model", time.Second)
	r := New(db, est, pub, logr.Discard(), Options{DefaultLocale: "India", Now: func() time.Time { return now }})
	return r, db, pub
}

func owner(id string) models.Owner {
	return models.Owner{ID: id, City: "Pune", Pincode: "411001"}
}

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestReconcileCreatesFood(t *testing.T) {
	gen := &scriptedGen{text: validAnswer}
	r, _, pub := setup(t, gen)

	res, err := r.Reconcile(context.Background(), owner("a"), Submission{Name: " Milk ", Quantity: qty("4"), IsRefrigerated: true})
	require.NoError(t, err)

	assert.True(t, res.NewFood)
	assert.True(t, res.Created)
	assert.Equal(t, "Milk", res.Food.Name)
	assert.Equal(t, models.FoodStatusSelling, res.Food.Status)
	assert.True(t, res.Food.IsRefrigerated)
	assert.True(t, res.Food.Quantity.Equal(qty("4")))
	assert.Equal(t, now.AddDate(0, 0, 10).Day(), res.Food.BestBefore.Day())
	assert.Equal(t, int32(1), gen.calls.Load())

	require.Len(t, pub.evts, 1)
	assert.Equal(t, events.FoodCreated, pub.evts[0].Type)
}

func TestReconcileMergesCaseInsensitive(t *testing.T) {
	gen := &scriptedGen{text: validAnswer}
	r, db, _ := setup(t, gen)
	ctx := context.Background()

	first, err := r.Reconcile(ctx, owner("a"), Submission{Name: "Rice", Quantity: qty("5")})
	require.NoError(t, err)

	second, err := r.Reconcile(ctx, owner("b"), Submission{Name: "rice", Quantity: qty("3")})
	require.NoError(t, err)

	assert.Equal(t, first.Food.ID, second.Food.ID)
	assert.False(t, second.NewFood)
	assert.True(t, second.Created)
	assert.True(t, second.Food.Quantity.Equal(qty("8")))
	assert.NotEqual(t, first.Item.ID, second.Item.ID)
	assert.Equal(t, "Added 'Rice' to your inventory.", second.Message)
	// Only the first submission needed dates.
	assert.Equal(t, int32(1), gen.calls.Load())

	// Same owner again: no new link, message carries the running total.
	third, err := r.Reconcile(ctx, owner("a"), Submission{Name: "RICE", Quantity: qty("2")})
	require.NoError(t, err)
	assert.False(t, third.Created)
	assert.Equal(t, first.Item.ID, third.Item.ID)
	assert.Equal(t, "Added 2 to existing 'Rice'. Total quantity: 10", third.Message)

	food, err := db.Queries().FoodByID(ctx, first.Food.ID)
	require.NoError(t, err)
	assert.True(t, food.Quantity.Equal(qty("10")))

	invA, _ := db.Queries().InventoryByOwner(ctx, "a")
	invB, _ := db.Queries().InventoryByOwner(ctx, "b")
	assert.Len(t, invA, 1)
	assert.Len(t, invB, 1)
}

func TestReconcileRejectsBadInput(t *testing.T) {
	r, _, _ := setup(t, &scriptedGen{text: validAnswer})
	ctx := context.Background()

	_, err := r.Reconcile(ctx, owner("a"), Submission{Name: "Rice", Quantity: qty("0")})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = r.Reconcile(ctx, owner("a"), Submission{Name: "Rice", Quantity: qty("-1")})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = r.Reconcile(ctx, owner("a"), Submission{Name: "   ", Quantity: qty("1")})
	assert.ErrorIs(t, err, models.ErrMissingField)
}

func TestReconcileOracleFailuresAbortCreation(t *testing.T) {
	tests := []struct {
		name string
		gen  oracle.Generator
		want error
	}{
		{"best before too soon", &scriptedGen{text: "best_before:2026-03-04T12:00:00, expires_at:2026-03-31T12:00:00"}, models.ErrInvalidEstimate},
		{"declined", &scriptedGen{text: "ERROR: Unable to generate valid dates"}, models.ErrInvalidEstimate},
		{"garbage", &scriptedGen{text: "about a week"}, models.ErrInvalidEstimate},
		{"transport", &scriptedGen{err: errors.New("connection reset")}, models.ErrOracleUnavailable},
		{"unconfigured", oracle.Unconfigured{}, models.ErrOracleUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, db, pub := setup(t, tt.gen)
			ctx := context.Background()

			_, err := r.Reconcile(ctx, owner("a"), Submission{Name: "Milk", Quantity: qty("1")})
			assert.ErrorIs(t, err, tt.want)

			food, err := db.Queries().FoodByNameKey(ctx, Key("Milk"))
			require.NoError(t, err)
			assert.Nil(t, food)
			inv, _ := db.Queries().InventoryByOwner(ctx, "a")
			assert.Empty(t, inv)
			assert.Empty(t, pub.evts)
		})
	}
}

func TestReconcileOracleTimeout(t *testing.T) {
	db, err := database.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	defer db.Close()

	slow := oracle.GeneratorFunc(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	est := oracle.NewShelfLife(slow, "m", 20*time.Millisecond)
	r := New(db, est, nil, logr.Discard(), Options{Now: func() time.Time { return now }})

	_, err = r.Reconcile(context.Background(), owner("a"), Submission{Name: "Milk", Quantity: qty("1")})
	assert.ErrorIs(t, err, models.ErrOracleUnavailable)
}

func TestReconcileConcurrentNewName(t *testing.T) {
	gen := &scriptedGen{text: validAnswer, delay: 50 * time.Millisecond}
	r, db, _ := setup(t, gen)
	ctx := context.Background()

	const workers = 5
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Reconcile(ctx, owner(string(rune('a'+i))), Submission{Name: "Tomato", Quantity: qty("2")})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	food, err := db.Queries().FoodByNameKey(ctx, Key("tomato"))
	require.NoError(t, err)
	require.NotNil(t, food)
	assert.True(t, food.Quantity.Equal(qty("10")), "got %s", food.Quantity)
	assert.LessOrEqual(t, gen.calls.Load(), int32(workers))
}

func TestReconcileSharedEstimateSurvivesCancelledCaller(t *testing.T) {
	var calls atomic.Int32
	gen := oracle.GeneratorFunc(func(ctx context.Context, _, _ string) (string, error) {
		calls.Add(1)
		select {
		case <-time.After(200 * time.Millisecond):
			return validAnswer, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	r, db, _ := setup(t, gen)

	cancelled, cancel := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := r.Reconcile(cancelled, owner("a"), Submission{Name: "Paneer", Quantity: qty("2")})
		errA <- err
	}()
	time.Sleep(10 * time.Millisecond)

	errB := make(chan error, 1)
	go func() {
		_, err := r.Reconcile(context.Background(), owner("b"), Submission{Name: "Paneer", Quantity: qty("3")})
		errB <- err
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-errA, context.Canceled)
	require.NoError(t, <-errB)
	assert.Equal(t, int32(1), calls.Load())

	food, err := db.Queries().FoodByNameKey(context.Background(), Key("Paneer"))
	require.NoError(t, err)
	require.NotNil(t, food)
	assert.True(t, food.Quantity.Equal(qty("3")), "got %s", food.Quantity)
	invA, _ := db.Queries().InventoryByOwner(context.Background(), "a")
	assert.Empty(t, invA)
}
