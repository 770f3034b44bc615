package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// GetSettings returns the persisted settings, or the manager's defaults when
// none have been saved yet.
func (m *Manager) GetSettings(ctx context.Context) (Settings, error) {
	return m.settings(ctx, m.store)
}

// SettingsPatch is a partial settings update.
type SettingsPatch struct {
	FixedCommissionPercentage *decimal.Decimal
	CompanyName               *string
}

// UpdateSettings changes the percentage applied from now on. Existing orders
// keep their commission; see RecalculateCommissions.
func (m *Manager) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	if patch.FixedCommissionPercentage != nil {
		if err := ValidatePercentage(*patch.FixedCommissionPercentage); err != nil {
			return Settings{}, err
		}
	}
	var out Settings
	err := m.store.WithTx(ctx, func(st Store) error {
		s, err := m.settings(ctx, st)
		if err != nil {
			return err
		}
		if patch.FixedCommissionPercentage != nil {
			s.FixedCommissionPercentage = *patch.FixedCommissionPercentage
		}
		if patch.CompanyName != nil {
			s.CompanyName = strings.TrimSpace(*patch.CompanyName)
		}
		out = s
		return st.SaveSettings(ctx, s)
	})
	if err != nil {
		return Settings{}, err
	}
	m.log.Info().Str("percentage", out.FixedCommissionPercentage.String()).Msg("settings updated")
	return out, nil
}

// Bootstrap persists the default settings and DefaultBrands if they are
// missing. It is safe to call on every start.
func (m *Manager) Bootstrap(ctx context.Context) error {
	return m.store.WithTx(ctx, func(st Store) error {
		s, err := st.GetSettings(ctx)
		if err != nil {
			return err
		}
		if s == nil {
			if err := st.SaveSettings(ctx, m.defaults); err != nil {
				return err
			}
			m.log.Info().Msg("settings seeded")
		}
		for _, name := range DefaultBrands {
			existing, err := st.FindBrandByName(ctx, name)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			if _, err := (LazyCreateBrands{}).ResolveUnknown(ctx, st, name, m.now()); err != nil {
				return err
			}
			m.log.Info().Str("brand", name).Msg("brand seeded")
		}
		return nil
	})
}
