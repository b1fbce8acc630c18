package reconcile

import (
	"loyalty-engine/pkg/config"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile.service",
	fx.Provide(
		NewService,
		provideScheduler,
	),
	fx.Invoke(
		StartScheduler,
		registerTaskHandler,
	),
)

func provideScheduler(svc *Service, cfg *config.Config) *Scheduler {
	return NewScheduler(svc, cfg.Loyalty.ReconcileInterval)
}

func registerTaskHandler(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(TaskReconcilePromoUsage, svc.HandleReconcileTask)
}
