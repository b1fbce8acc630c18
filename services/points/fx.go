package points

import (
	"loyalty-engine/pkg/config"

	"go.uber.org/fx"
)

var Module = fx.Module("points.service",
	fx.Provide(
		provideOptions,
		NewService,
	),
)

func provideOptions(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg.Loyalty.RedemptionRate > 0 {
		opts.RedemptionRate = cfg.Loyalty.RedemptionRate
	}
	if cfg.Loyalty.MinRedeemPoints > 0 {
		opts.MinRedeemPoints = cfg.Loyalty.MinRedeemPoints
	}
	if cfg.Loyalty.RedeemStep > 0 {
		opts.RedeemStep = cfg.Loyalty.RedeemStep
	}
	return opts
}
