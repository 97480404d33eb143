package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "go-trip-pipeline/docs"
	"go-trip-pipeline/internal/api/handler"
	"go-trip-pipeline/pkg/router"
)

func RegisterRoutes(r *router.Router, h *handler.Handler, metrics http.Handler) {
	r.GET("/healthz", h.Health)
	r.POST("/api/v1/runs/streaming", h.RunStreaming)
	r.POST("/api/v1/runs/batch", h.RunBatch)
	r.POST("/api/v1/cleanse", h.Cleanse)
	r.GET("/api/v1/ledger/*", h.GetLedgerEntry)
	r.GET("/api/v1/stages/*", h.GetStages)

	r.Handle("/metrics", metrics)
	r.Handle("/swagger/", httpSwagger.WrapHandler)
}
