package main

import (
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	config "github.com/NordCoder/Puntos/internal/config/reminder"
	"github.com/NordCoder/Puntos/internal/obs"
	apisvc "github.com/NordCoder/Puntos/internal/services/api"
)

func buildHTTPServer(cfg *config.Config, api *apisvc.Server, checks ...obs.HealthCheck) (*http.Server, error) {
	mux := runtime.NewServeMux()
	if err := api.Register(mux); err != nil {
		return nil, err
	}

	root := http.NewServeMux()
	root.Handle("/", otelhttp.NewHandler(mux, "reminder.http"))
	root.Handle("/metrics", obs.MetricsHandler())
	root.HandleFunc("/healthz", obs.HealthHandler(checks...))

	handler := cors(cfg.Server.AllowedOrigins)(root)

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, nil
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
	return srv.ListenAndServe()
}
