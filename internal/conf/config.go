// conf/config.go settings structures and loading
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// StreamSettings describes the playback source.
type StreamSettings struct {
	URL            string        // icecast/http stream URL
	FfmpegPath     string        // ffmpeg binary, resolved against PATH when relative
	ConnectTimeout time.Duration // max wait for the first decoded audio
	Output         string        // audible output: "none" or "speaker"
	Volume         float64       // initial volume 0.0-1.0
	Muted          bool          // initial mute state
}

// CaptureSettings controls sample recording.
type CaptureSettings struct {
	RecordWindow   time.Duration // length of the recorded sample
	ChunkInterval  time.Duration // tap drain interval while recording
	MinSampleBytes int           // encoded samples below this size are rejected
	TapSeconds     int           // capacity of the capture tap in seconds of PCM
	Encodings      []string      // encoding preference list, most preferred first
	Bitrate        int           // opus bitrate in bits per second
}

// ACRCloudSettings holds recognition credentials for ACRCloud.
type ACRCloudSettings struct {
	Host             string // e.g. identify-eu-west-1.acrcloud.com
	AccessKey        string
	AccessSecret     string
	SignatureVersion string
}

// AudDSettings holds credentials for the AudD recognition API.
type AudDSettings struct {
	Endpoint string
	APIToken string
}

// IdentifySettings configures the identification client.
type IdentifySettings struct {
	Backends      []string      // recognizers tried in order, first hit wins
	Timeout       time.Duration // per request timeout
	UnknownArtist string        // placeholder used when no artist is reported
	ACRCloud      ACRCloudSettings
	AudD          AudDSettings
}

// ITunesSettings configures the iTunes Search artwork provider.
type ITunesSettings struct {
	Endpoint  string
	Country   string
	RateLimit float64 // requests per second
}

// SpotifySettings configures the Spotify artwork provider.
type SpotifySettings struct {
	ClientID     string
	ClientSecret string
}

// ArtworkSettings configures best-effort cover art enrichment.
type ArtworkSettings struct {
	Enabled  bool
	Provider string        // "itunes" or "spotify"
	CacheTTL time.Duration // lookup cache lifetime
	ITunes   ITunesSettings
	Spotify  SpotifySettings
}

// DedupSettings configures duplicate suppression.
type DedupSettings struct {
	Window     time.Duration // repeats inside this window are duplicates
	Similarity float64       // 1.0 requires exact case-insensitive match
}

// HistorySettings configures the identified track list.
type HistorySettings struct {
	Capacity int  // most recent entries kept
	Persist  bool // mirror history into the datastore
}

// SchedulerSettings configures automatic identification.
type SchedulerSettings struct {
	Enabled        bool          // auto-identify toggle at startup
	Interval       time.Duration // time between attempts
	ImmediateFirst bool          // fire once right after arming
}

// StatusSettings configures the user-facing status line.
type StatusSettings struct {
	ClearAfter time.Duration // idle messages are cleared after this delay
}

// WebServerSettings configures the HTTP API.
type WebServerSettings struct {
	Enabled           bool
	Listen            string  // host:port
	SearchURLTemplate string  // external search URL, %s is replaced with the escaped query
	IdentifyRateLimit float64 // manual identify requests per second per client
}

// SQLiteSettings configures the embedded database.
type SQLiteSettings struct {
	Path string
}

// MySQLSettings configures an external database.
type MySQLSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// DatastoreSettings selects the history database.
type DatastoreSettings struct {
	Type   string // "sqlite" or "mysql"
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// HomeAssistantSettings configures MQTT discovery for Home Assistant.
type HomeAssistantSettings struct {
	Enabled         bool
	DiscoveryPrefix string
}

// MQTTSettings configures publishing of identified tracks.
type MQTTSettings struct {
	Enabled       bool
	Broker        string
	ClientID      string
	Topic         string
	Username      string
	Password      string
	Retain        bool
	HomeAssistant HomeAssistantSettings
}

// NotificationSettings configures push notifications through shoutrrr URLs.
type NotificationSettings struct {
	Enabled bool
	URLs    []string
	Timeout time.Duration
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// EventBusSettings configures the internal event bus.
type EventBusSettings struct {
	BufferSize int
	Workers    int
}

// Settings is the root configuration.
type Settings struct {
	Debug bool

	Stream       StreamSettings
	Capture      CaptureSettings
	Identify     IdentifySettings
	Artwork      ArtworkSettings
	Dedup        DedupSettings
	History      HistorySettings
	Scheduler    SchedulerSettings
	Status       StatusSettings
	WebServer    WebServerSettings
	Datastore    DatastoreSettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Sentry       SentrySettings
	EventBus     EventBusSettings
	Logging      logger.LoggingConfig
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file, .env file and environment variables.
// An explicit configFile overrides the default search paths.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

// resolveSecrets expands ${VAR} and file: references in credential fields.
func resolveSecrets(s *Settings) error {
	return secrets.ResolveAll(map[string]*string{
		"identify.acrcloud.accesskey":    &s.Identify.ACRCloud.AccessKey,
		"identify.acrcloud.accesssecret": &s.Identify.ACRCloud.AccessSecret,
		"identify.audd.apitoken":         &s.Identify.AudD.APIToken,
		"artwork.spotify.clientsecret":   &s.Artwork.Spotify.ClientSecret,
		"datastore.mysql.password":       &s.Datastore.MySQL.Password,
		"mqtt.password":                  &s.MQTT.Password,
		"sentry.dsn":                     &s.Sentry.DSN,
	})
}

func initViper(configFile string) error {
	setDefaultConfig()

	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	loadDotEnv(append([]string{"."}, paths...))

	if err := bindEnvVars(); err != nil {
		GetLogger().Warn("environment variable issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, p := range paths {
		viper.AddConfigPath(p)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(paths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, DefaultConfig(), 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	GetLogger().Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// DefaultConfig returns the embedded default config.yaml.
func DefaultConfig() []byte {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded config.yaml missing: %v", err))
	}
	return data
}

// GetSettings returns the settings produced by the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath atomically. Comments in the
// existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tmpName, configPath); err != nil {
		if err := moveFile(tmpName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}
	return nil
}
