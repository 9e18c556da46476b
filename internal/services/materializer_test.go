package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	"budgetbook/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) ofType(t amqp.EventType) []*amqp.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*amqp.LedgerEvent
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func openRepo(t *testing.T, path string) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	return openRepo(t, filepath.Join(t.TempDir(), "ledger.db"))
}

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func createRule(t *testing.T, repo *storage.SQLiteRepository, r core.RecurringRule) core.RecurringRule {
	t.Helper()
	if r.Creator == "" {
		r.Creator = "alice"
	}
	if r.Title == "" {
		r.Title = "Milk"
	}
	created, err := repo.CreateRule(context.Background(), r)
	require.NoError(t, err)
	return created
}

func entryDates(t *testing.T, repo *storage.SQLiteRepository, ruleID int64) []string {
	t.Helper()
	entries, err := repo.ListEntriesByRule(context.Background(), ruleID)
	require.NoError(t, err)
	dates := make([]string, 0, len(entries))
	for _, e := range entries {
		dates = append(dates, e.Date.String())
	}
	return dates
}

func TestGenerateDue_MonthlyDayOfMonthClamps(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rule := createRule(t, repo, core.RecurringRule{
		UnitPrice:   price("100"),
		Frequency:   core.Monthly,
		MonthlyMode: core.DayOfMonth,
		StartDate:   core.NewDate(2024, 1, 31),
	})
	m := NewMaterializer(repo, nil)

	n, err := m.GenerateDue(ctx, core.NewDate(2024, 4, 15))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31"}, entryDates(t, repo, rule.ID))

	got, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-31", got.LastGeneratedDate.String())

	n, err = m.GenerateDue(ctx, core.NewDate(2024, 4, 15))
	require.NoError(t, err)
	assert.Zero(t, n, "second run on the same day creates nothing")

	n, err = m.GenerateDue(ctx, core.NewDate(2024, 5, 31))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30", "2024-05-31"}, entryDates(t, repo, rule.ID))
}

func TestGenerateDue_MonthlyCalendarSeedsNextFirst(t *testing.T) {
	repo := newTestRepo(t)
	rule := createRule(t, repo, core.RecurringRule{
		Frequency:   core.Monthly,
		MonthlyMode: core.CalendarFirst,
		StartDate:   core.NewDate(2024, 3, 15),
	})

	n, err := NewMaterializer(repo, nil).GenerateDue(context.Background(), core.NewDate(2024, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"2024-04-01", "2024-05-01", "2024-06-01"}, entryDates(t, repo, rule.ID))
}

func TestGenerateDue_RespectsEndDateAndStart(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	bounded := createRule(t, repo, core.RecurringRule{
		Frequency: core.Daily,
		StartDate: core.NewDate(2024, 1, 1),
		EndDate:   core.NewDate(2024, 1, 3),
	})
	future := createRule(t, repo, core.RecurringRule{
		Frequency: core.Weekly,
		StartDate: core.NewDate(2024, 2, 1),
	})

	n, err := NewMaterializer(repo, nil).GenerateDue(ctx, core.NewDate(2024, 1, 10))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, entryDates(t, repo, bounded.ID))
	assert.Empty(t, entryDates(t, repo, future.ID))

	got, err := repo.GetRule(ctx, future.ID)
	require.NoError(t, err)
	assert.True(t, got.LastGeneratedDate.IsZero())
}

func TestGenerateDue_Amounts(t *testing.T) {
	tests := []struct {
		name     string
		price    decimal.NullDecimal
		quantity decimal.NullDecimal
		amount   string
		qty      string
	}{
		{"price times quantity", price("30.50"), price("2"), "61", "2"},
		{"unset quantity counts as one", price("12.25"), decimal.NullDecimal{}, "12.25", "1"},
		{"zero quantity stays zero", price("12.25"), price("0"), "0", "0"},
		{"unset price counts as zero", decimal.NullDecimal{}, price("3"), "0", "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := newTestRepo(t)
			rule := createRule(t, repo, core.RecurringRule{
				UnitPrice:       tt.price,
				DefaultQuantity: tt.quantity,
				Frequency:       core.Daily,
				Category:        "Dairy",
				StartDate:       core.NewDate(2024, 1, 1),
				Creator:         "bob",
			})

			_, err := NewMaterializer(repo, nil).GenerateDue(ctx, core.NewDate(2024, 1, 1))
			require.NoError(t, err)

			entries, err := repo.ListEntriesByRule(ctx, rule.ID)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			e := entries[0]
			assert.Equal(t, tt.amount, e.Amount.String())
			assert.Equal(t, tt.qty, e.Quantity.Decimal.String())
			assert.Equal(t, tt.price.Valid, e.UnitPrice.Valid)
			assert.Equal(t, "bob", e.Payer)
			assert.Equal(t, "Dairy", e.Category)
			assert.Equal(t, rule.Title, e.Title)
		})
	}
}

func TestGenerateDue_DeletedOccurrenceStaysDeleted(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rule := createRule(t, repo, core.RecurringRule{Frequency: core.Daily, StartDate: core.NewDate(2024, 1, 1)})
	m := NewMaterializer(repo, nil)

	_, err := m.GenerateDue(ctx, core.NewDate(2024, 1, 3))
	require.NoError(t, err)

	entries, err := repo.ListEntriesByRule(ctx, rule.ID)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteEntry(ctx, entries[1].ID))

	n, err := m.GenerateDue(ctx, core.NewDate(2024, 1, 3))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{"2024-01-01", "2024-01-03"}, entryDates(t, repo, rule.ID))
}

func TestGenerateDue_ExistingEntryAdvancesWatermark(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rule := createRule(t, repo, core.RecurringRule{Frequency: core.Daily, StartDate: core.NewDate(2024, 1, 1)})

	_, err := repo.CreateEntry(ctx, core.Entry{
		Date:        core.NewDate(2024, 1, 1),
		Title:       "Milk",
		Payer:       "alice",
		RecurringID: rule.ID,
	})
	require.NoError(t, err)

	n, err := NewMaterializer(repo, nil).GenerateDue(ctx, core.NewDate(2024, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, entryDates(t, repo, rule.ID))

	got, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", got.LastGeneratedDate.String())
}

func TestGenerateDue_PublishesOncePerMonth(t *testing.T) {
	repo := newTestRepo(t)
	rule := createRule(t, repo, core.RecurringRule{Frequency: core.Weekly, StartDate: core.NewDate(2024, 1, 15)})
	pub := &recordingPublisher{}

	n, err := NewMaterializer(repo, pub).GenerateDue(context.Background(), core.NewDate(2024, 2, 12))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	created := pub.ofType(amqp.EntryCreated)
	require.Len(t, created, 2)
	assert.Equal(t, rule.ID, created[0].RuleID)
	assert.Equal(t, "2024-01-01", created[0].Date.String())
	assert.Equal(t, "2024-02-01", created[1].Date.String())
}

// gatedStore holds ListRules open until release is closed, returning the
// rules it saw before blocking.
type gatedStore struct {
	*storage.SQLiteRepository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(repo *storage.SQLiteRepository) *gatedStore {
	return &gatedStore{
		SQLiteRepository: repo,
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
}

func (g *gatedStore) ListRules(ctx context.Context) ([]core.RecurringRule, error) {
	rules, err := g.SQLiteRepository.ListRules(ctx)
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return rules, err
}

func TestGenerateDue_CanceledCallerDoesNotAbortSharedRun(t *testing.T) {
	repo := newTestRepo(t)
	rule := createRule(t, repo, core.RecurringRule{Frequency: core.Daily, StartDate: core.NewDate(2024, 1, 1)})
	store := newGatedStore(repo)
	m := NewMaterializer(store, nil)
	today := core.NewDate(2024, 1, 3)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := m.GenerateDue(ctxA, today)
		errA <- err
	}()
	<-store.entered

	type result struct {
		n   int
		err error
	}
	resB := make(chan result, 1)
	go func() {
		n, err := m.GenerateDue(context.Background(), today)
		resB <- result{n, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	close(store.release)

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, entryDates(t, repo, rule.ID))
}

func TestGenerateDue_JoinedCallerSeesOwnRule(t *testing.T) {
	repo := newTestRepo(t)
	store := newGatedStore(repo)
	m := NewMaterializer(store, nil)
	today := core.NewDate(2024, 1, 2)

	first := make(chan error, 1)
	go func() {
		_, err := m.GenerateDue(context.Background(), today)
		first <- err
	}()
	<-store.entered

	// Created after the in-flight run listed rules.
	rule := createRule(t, repo, core.RecurringRule{Frequency: core.Daily, StartDate: core.NewDate(2024, 1, 1)})

	second := make(chan error, 1)
	go func() {
		_, err := m.GenerateDue(context.Background(), today)
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	require.NoError(t, <-first)
	require.NoError(t, <-second)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, entryDates(t, repo, rule.ID))
}

func TestGenerateDue_ConcurrentGeneratorsDoNotDuplicate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	first := openRepo(t, path)
	second := openRepo(t, path)

	rule := createRule(t, first, core.RecurringRule{Frequency: core.Daily, StartDate: core.NewDate(2024, 1, 1)})
	today := core.NewDate(2024, 3, 31)

	generators := []*Materializer{
		NewMaterializer(first, nil),
		NewMaterializer(second, nil),
		NewMaterializer(first, nil),
		NewMaterializer(second, nil),
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for _, m := range generators {
		wg.Add(1)
		go func(m *Materializer) {
			defer wg.Done()
			n, err := m.GenerateDue(ctx, today)
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}(m)
	}
	wg.Wait()

	dates := entryDates(t, first, rule.ID)
	assert.Len(t, dates, 91)
	assert.Equal(t, 91, total, "every occurrence created exactly once")

	seen := make(map[string]bool)
	for _, d := range dates {
		assert.False(t, seen[d], "duplicate entry for %s", d)
		seen[d] = true
	}

	got, err := second.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-31", got.LastGeneratedDate.String())
}

func TestGenerateDue_CanceledContext(t *testing.T) {
	repo := newTestRepo(t)
	createRule(t, repo, core.RecurringRule{Frequency: core.Daily, StartDate: core.NewDate(2024, 1, 1)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMaterializer(repo, nil).GenerateDue(ctx, core.NewDate(2024, 1, 5))
	assert.Error(t, err)
}

func TestGenerateDue_Uninitialized(t *testing.T) {
	_, err := NewMaterializer(nil, nil).GenerateDue(context.Background(), core.NewDate(2024, 1, 1))
	assert.Error(t, err)
}
