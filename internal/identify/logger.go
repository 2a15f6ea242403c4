package identify

import "github.com/tphakala/trackid-go/internal/logger"

// GetLogger returns the identify package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("identify")
}
