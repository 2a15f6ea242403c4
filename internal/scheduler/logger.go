package scheduler

import "github.com/tphakala/trackid-go/internal/logger"

// GetLogger returns the scheduler package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("scheduler")
}
