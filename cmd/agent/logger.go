package main

import (
	"github.com/septivank/water-meter-agent/internal/config"
	"github.com/septivank/water-meter-agent/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
}
