package main

import (
	"go.uber.org/zap"

	config "github.com/NordCoder/Puntos/internal/config/reminder"
	"github.com/NordCoder/Puntos/internal/obs"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg.AsLoggerConfig())
}
