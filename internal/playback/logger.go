package playback

import "github.com/tphakala/trackid-go/internal/logger"

// GetLogger returns the playback package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("playback")
}
