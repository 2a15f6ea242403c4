// Package conf provides configuration management for trackid.
package conf

import "github.com/tphakala/trackid-go/internal/logger"

// GetLogger returns the config module logger. It is resolved on every call
// so it follows the central logger installed after package init.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
