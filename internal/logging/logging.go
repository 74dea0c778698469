package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chesapeake-backend/internal/config"
)

func New(cfg config.Config) (*zap.Logger, error) {
	var (
		log *zap.Logger
		err error
	)
	if cfg.LogJSON {
		log, err = zap.NewProduction()
	} else {
		zc := zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		log, err = zc.Build()
	}
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("env", cfg.Env)), nil
}
