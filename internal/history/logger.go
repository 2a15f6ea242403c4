package history

import "github.com/tphakala/trackid-go/internal/logger"

// GetLogger returns the history package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("history")
}
