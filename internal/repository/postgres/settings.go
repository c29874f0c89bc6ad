package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tmksh/fulfillment/internal/domain"
	"github.com/tmksh/fulfillment/pkg/database"
)

// SettingsRepository implements repository.SettingsRepository using
// PostgreSQL. Organizations without a stored row fall back to the defaults
// the repository is constructed with.
type SettingsRepository struct {
	pool     database.DBTX
	defaults domain.PricingConfig
}

// NewSettingsRepository creates a new PostgreSQL-backed settings repository.
func NewSettingsRepository(pool database.DBTX, defaults domain.PricingConfig) *SettingsRepository {
	return &SettingsRepository{pool: pool, defaults: defaults}
}

// PricingConfig returns the organization's pricing rules.
func (r *SettingsRepository) PricingConfig(ctx context.Context, organizationID string) (domain.PricingConfig, error) {
	query := `
		SELECT free_shipping_threshold, flat_shipping_fee, tax_rate_bps
		FROM organization_settings
		WHERE organization_id = $1`

	var cfg domain.PricingConfig
	err := r.pool.QueryRow(ctx, query, organizationID).Scan(
		&cfg.FreeShippingThreshold,
		&cfg.FlatShippingFee,
		&cfg.TaxRateBps,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.defaults, nil
		}
		return domain.PricingConfig{}, fmt.Errorf("get organization settings: %w", err)
	}

	return cfg, nil
}
