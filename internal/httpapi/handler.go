package httpapi

import (
	"net/http"

	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/health"
	"loyalty-engine/services/promo"
	"loyalty-engine/services/reconcile"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi", fx.Provide(NewHandler))

// Handler hosts the operational surface: health probes plus a small internal
// admin API for promo code management and on-demand reconciliation.
type Handler struct {
	health health.HealthService
	client *asynq.Client
	promo  *promo.Service
}

type HandlerParams struct {
	fx.In
	Health health.HealthService
	Client *asynq.Client
	Promo  *promo.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		health: p.Health,
		client: p.Client,
		promo:  p.Promo,
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health.Liveness)
	r.GET("/readyz", h.health.Readiness)

	internal := r.Group("/internal")
	internal.POST("/reconcile", h.triggerReconcile)
	internal.GET("/promo-codes", h.listPromoCodes)
	internal.POST("/promo-codes", h.createPromoCode)
}

type reconcileRequest struct {
	PromoCodeID string `json:"promo_code_id"`
}

// triggerReconcile enqueues a reconciliation run instead of executing it
// inline, so a slow scan never ties up the admin request.
func (h *Handler) triggerReconcile(c *gin.Context) {
	var req reconcileRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.BadRequest("invalid request body"))
			return
		}
	}

	span := trace.SpanFromContext(c.Request.Context())
	task, err := reconcile.NewReconcileTask(reconcile.ReconcilePayload{
		PromoCodeID: req.PromoCodeID,
		TraceID:     span.SpanContext().TraceID().String(),
	})
	if err != nil {
		_ = c.Error(errutil.Internal("failed to build reconcile task", err))
		return
	}

	info, err := h.client.EnqueueContext(c.Request.Context(), task)
	if err != nil {
		_ = c.Error(errutil.Internal("failed to enqueue reconcile task", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": info.ID,
		"queue":   info.Queue,
	})
}

func (h *Handler) listPromoCodes(c *gin.Context) {
	codes, err := h.promo.ListActive(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"promo_codes": codes})
}

func (h *Handler) createPromoCode(c *gin.Context) {
	var pc promo.Code
	if err := c.ShouldBindJSON(&pc); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body"))
		return
	}

	if err := h.promo.CreateCode(c.Request.Context(), &pc); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, &pc)
}
