package logging

import (
	"go.uber.org/zap"
	"strings"
)

// New returns a development logger for "dev"/"development" and a JSON production logger otherwise.
func New(env, service string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", service)), nil
}
