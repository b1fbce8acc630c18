package redemption

import (
	"loyalty-engine/pkg/config"

	"go.uber.org/fx"
)

var Module = fx.Module("redemption.service",
	fx.Provide(
		provideOptions,
		NewService,
	),
)

func provideOptions(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg.Loyalty.VoucherTTL > 0 {
		opts.VoucherTTL = cfg.Loyalty.VoucherTTL
	}
	if cfg.Loyalty.VoucherCodeAttempts > 0 {
		opts.CodeAttempts = cfg.Loyalty.VoucherCodeAttempts
	}
	if cfg.Loyalty.MinRedeemPoints > 0 {
		opts.MinPointsUsed = cfg.Loyalty.MinRedeemPoints
	}
	if cfg.Loyalty.RedeemStep > 0 {
		opts.PointsUsedStep = cfg.Loyalty.RedeemStep
	}
	return opts
}
