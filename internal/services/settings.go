package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"budgetbook/internal/cache"
	"budgetbook/internal/core"
)

const (
	settingCurrency   = "currency"
	settingCategories = "categories"

	settingsCacheKey = "settings"
)

// SettingsStore is the key/value table holding app-wide settings.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}

// SettingsResolver reads ledger preferences and fills in defaults.
type SettingsResolver struct {
	store           SettingsStore
	defaultCurrency string
	cache           cache.Cache[core.Settings]
}

// NewSettingsResolver caches resolved settings in c; pass cache.Nop to
// always read through.
func NewSettingsResolver(store SettingsStore, defaultCurrency string, c cache.Cache[core.Settings]) *SettingsResolver {
	if strings.TrimSpace(defaultCurrency) == "" {
		defaultCurrency = core.DefaultCurrency
	}
	if c == nil {
		c = cache.Nop[core.Settings]{}
	}
	return &SettingsResolver{store: store, defaultCurrency: defaultCurrency, cache: c}
}

// Resolve never fails: an unreadable store yields the defaults.
func (r *SettingsResolver) Resolve(ctx context.Context) core.Settings {
	if s, ok := r.cache.Get(settingsCacheKey); ok {
		return s
	}

	s, err := r.load(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read settings, using defaults", "error", err)
		return r.defaults()
	}

	r.cache.Set(settingsCacheKey, s)
	return s
}

func (r *SettingsResolver) load(ctx context.Context) (core.Settings, error) {
	s := r.defaults()

	currency, ok, err := r.store.GetSetting(ctx, settingCurrency)
	if err != nil {
		return s, err
	}
	if ok && strings.TrimSpace(currency) != "" {
		s.Currency = strings.TrimSpace(currency)
	}

	raw, ok, err := r.store.GetSetting(ctx, settingCategories)
	if err != nil {
		return s, err
	}
	if ok {
		s.Categories = ParseCategories(raw)
	}

	return s, nil
}

// Save stores both settings and drops the cached copy.
func (r *SettingsResolver) Save(ctx context.Context, s core.Settings) error {
	currency := strings.TrimSpace(s.Currency)
	if currency == "" {
		currency = r.defaultCurrency
	}
	if err := r.store.PutSetting(ctx, settingCurrency, currency); err != nil {
		return fmt.Errorf("save currency: %w", err)
	}
	categories := ParseCategories(strings.Join(s.Categories, ","))
	if err := r.store.PutSetting(ctx, settingCategories, strings.Join(categories, ",")); err != nil {
		return fmt.Errorf("save categories: %w", err)
	}
	r.cache.Delete(settingsCacheKey)
	return nil
}

func (r *SettingsResolver) defaults() core.Settings {
	return core.Settings{Currency: r.defaultCurrency, Categories: []string{}}
}

// ParseCategories splits a comma separated list, trimming blanks and
// dropping empty items.
func ParseCategories(raw string) []string {
	out := []string{}
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
