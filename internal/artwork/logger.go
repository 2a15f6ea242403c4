package artwork

import "github.com/tphakala/trackid-go/internal/logger"

// GetLogger returns the artwork package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("artwork")
}
