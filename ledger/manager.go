package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MANAGER - Order lifecycle, period closing and totals
// =============================================================================

// Manager applies the lifecycle rules against a TxStore. Every public
// mutation runs as one transaction: the order, its period's totals and any
// brand it creates commit together or not at all.
type Manager struct {
	store    TxStore
	clock    Clock
	log      zerolog.Logger
	brands   BrandPolicy
	defaults Settings
}

type Option func(*Manager)

func WithClock(c Clock) Option { return func(m *Manager) { m.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithBrandPolicy selects how unknown brand references are handled.
func WithBrandPolicy(p BrandPolicy) Option { return func(m *Manager) { m.brands = p } }

// WithDefaultSettings sets the settings used while none are persisted.
func WithDefaultSettings(s Settings) Option { return func(m *Manager) { m.defaults = s } }

// DefaultSettings applies a 10% commission.
func DefaultSettings() Settings {
	return Settings{
		FixedCommissionPercentage: decimal.NewFromInt(10),
		CompanyName:               "My Commission System",
	}
}

func NewManager(store TxStore, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		clock:    SystemClock,
		log:      zerolog.Nop(),
		brands:   LazyCreateBrands{},
		defaults: DefaultSettings(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) now() time.Time { return m.clock().UTC() }

func (m *Manager) today() Date { return DateOf(m.clock()) }

// Now and Today read the manager's clock.
func (m *Manager) Now() time.Time { return m.now() }

func (m *Manager) Today() Date { return m.today() }

// settings reads the settings once at the start of a unit of work.
func (m *Manager) settings(ctx context.Context, st Store) (Settings, error) {
	s, err := st.GetSettings(ctx)
	if err != nil {
		return Settings{}, err
	}
	if s == nil {
		return m.defaults, nil
	}
	return *s, nil
}

// =============================================================================
// ACTOR - Who performs an operation, recorded in audit entries
// =============================================================================

// SystemActor is recorded when no user is attached to the context.
const SystemActor = "System"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorContextKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
