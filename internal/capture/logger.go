package capture

import "github.com/tphakala/trackid-go/internal/logger"

// GetLogger returns the capture package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("capture")
}
