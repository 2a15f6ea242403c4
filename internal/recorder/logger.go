package recorder

import "github.com/tphakala/trackid-go/internal/logger"

// GetLogger returns the recorder package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("recorder")
}
