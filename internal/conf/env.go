// env.go environment variable and .env bindings
package conf

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tphakala/trackid-go/internal/logger"
)

type envBinding struct {
	ConfigKey string             // viper config key
	EnvVar    string             // environment variable name
	Validate  func(string) error // optional validation
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "TRACKID_DEBUG", validateEnvBool},
		{"stream.url", "TRACKID_STREAM_URL", validateEnvURL},
		{"stream.ffmpegpath", "TRACKID_FFMPEG_PATH", nil},

		{"identify.acrcloud.host", "TRACKID_ACRCLOUD_HOST", nil},
		{"identify.acrcloud.accesskey", "TRACKID_ACRCLOUD_ACCESS_KEY", nil},
		{"identify.acrcloud.accesssecret", "TRACKID_ACRCLOUD_ACCESS_SECRET", nil},
		{"identify.audd.apitoken", "TRACKID_AUDD_API_TOKEN", nil},

		{"artwork.spotify.clientid", "TRACKID_SPOTIFY_CLIENT_ID", nil},
		{"artwork.spotify.clientsecret", "TRACKID_SPOTIFY_CLIENT_SECRET", nil},

		{"scheduler.enabled", "TRACKID_AUTO_IDENTIFY", validateEnvBool},
		{"webserver.listen", "TRACKID_LISTEN", nil},

		{"datastore.mysql.password", "TRACKID_MYSQL_PASSWORD", nil},
		{"mqtt.password", "TRACKID_MQTT_PASSWORD", nil},
		{"sentry.dsn", "TRACKID_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every known environment variable and reports invalid values.
func bindEnvVars() error {
	var warnings []string
	for _, b := range getEnvBindings() {
		if err := viper.BindEnv(b.ConfigKey, b.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", b.EnvVar, err))
			continue
		}
		if b.Validate == nil {
			continue
		}
		if v := os.Getenv(b.EnvVar); v != "" {
			if err := b.Validate(v); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value: %v", b.EnvVar, err))
			}
		}
	}
	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// loadDotEnv loads the first .env file found in dirs. Variables already set in
// the process environment win.
func loadDotEnv(dirs []string) {
	for _, dir := range dirs {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			GetLogger().Warn("failed to load .env file", logger.String("path", path), logger.Error(err))
			continue
		}
		GetLogger().Debug("loaded .env file", logger.String("path", path))
		return
	}
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}
