// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/trackid-go/internal/logger"
)

// Bounds for the capture and scheduling parameters.
const (
	MinRecordWindow      = 14 * time.Second
	MaxRecordWindow      = 30 * time.Second
	MinSchedulerInterval = 30 * time.Second
	MaxSchedulerInterval = 60 * time.Second
)

// KnownEncodings lists every encoding the recorder can negotiate.
var KnownEncodings = DefaultEncodings

// KnownBackends lists the recognition backends.
var KnownBackends = []string{"acrcloud", "audd"}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}
	for _, check := range []func(*Settings) error{
		validateStreamSettings,
		validateCaptureSettings,
		validateIdentifySettings,
		validateArtworkSettings,
		validateDedupSettings,
		validateHistorySettings,
		validateSchedulerSettings,
		validateWebServerSettings,
		validateDatastoreSettings,
		validateMQTTSettings,
		validateNotificationSettings,
	} {
		if err := check(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}
	if settings.Status.ClearAfter <= 0 {
		ve.Errors = append(ve.Errors, "status.clearafter must be positive")
	}
	if settings.EventBus.BufferSize <= 0 || settings.EventBus.Workers <= 0 {
		ve.Errors = append(ve.Errors, "eventbus buffersize and workers must be positive")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateStreamSettings(s *Settings) error {
	st := &s.Stream
	if st.URL != "" {
		if err := validateEnvURL(st.URL); err != nil {
			return fmt.Errorf("stream.url: %w", err)
		}
	}
	if st.ConnectTimeout <= 0 {
		return fmt.Errorf("stream.connecttimeout must be positive")
	}
	if st.Output != "none" && st.Output != "speaker" {
		return fmt.Errorf("stream.output must be none or speaker, got %q", st.Output)
	}
	if st.Volume < 0 || st.Volume > 1 {
		return fmt.Errorf("stream.volume must be between 0 and 1")
	}
	return nil
}

func validateCaptureSettings(s *Settings) error {
	c := &s.Capture
	var errs []string
	if c.RecordWindow < MinRecordWindow || c.RecordWindow > MaxRecordWindow {
		errs = append(errs, fmt.Sprintf("capture.recordwindow must be between %s and %s", MinRecordWindow, MaxRecordWindow))
	}
	if c.ChunkInterval <= 0 || c.ChunkInterval > c.RecordWindow {
		errs = append(errs, "capture.chunkinterval must be positive and not exceed the record window")
	}
	if c.MinSampleBytes <= 0 {
		errs = append(errs, "capture.minsamplebytes must be positive")
	}
	if time.Duration(c.TapSeconds)*time.Second < c.RecordWindow {
		errs = append(errs, "capture.tapseconds must hold at least one record window")
	}
	if len(c.Encodings) == 0 {
		errs = append(errs, "capture.encodings must not be empty")
	}
	for _, e := range c.Encodings {
		if !slices.Contains(KnownEncodings, e) {
			errs = append(errs, fmt.Sprintf("unknown encoding %q", e))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateIdentifySettings(s *Settings) error {
	id := &s.Identify
	if len(id.Backends) == 0 {
		return fmt.Errorf("identify.backends must not be empty")
	}
	for _, b := range id.Backends {
		if !slices.Contains(KnownBackends, b) {
			return fmt.Errorf("unknown identify backend %q", b)
		}
	}
	if id.Timeout <= 0 {
		return fmt.Errorf("identify.timeout must be positive")
	}
	if slices.Contains(id.Backends, "acrcloud") && (id.ACRCloud.AccessKey == "" || id.ACRCloud.AccessSecret == "") {
		GetLogger().Warn("acrcloud credentials are not configured, identification will fail",
			logger.String("host", id.ACRCloud.Host))
	}
	if slices.Contains(id.Backends, "audd") && id.AudD.APIToken == "" {
		GetLogger().Warn("audd api token is not configured")
	}
	return nil
}

func validateArtworkSettings(s *Settings) error {
	a := &s.Artwork
	if !a.Enabled {
		return nil
	}
	switch a.Provider {
	case "itunes":
		if a.ITunes.RateLimit <= 0 {
			return fmt.Errorf("artwork.itunes.ratelimit must be positive")
		}
	case "spotify":
		if a.Spotify.ClientID == "" || a.Spotify.ClientSecret == "" {
			return fmt.Errorf("artwork.spotify requires clientid and clientsecret")
		}
	default:
		return fmt.Errorf("artwork.provider must be itunes or spotify, got %q", a.Provider)
	}
	return nil
}

func validateDedupSettings(s *Settings) error {
	if s.Dedup.Window <= 0 {
		return fmt.Errorf("dedup.window must be positive")
	}
	if s.Dedup.Similarity <= 0 || s.Dedup.Similarity > 1 {
		return fmt.Errorf("dedup.similarity must be in (0, 1]")
	}
	return nil
}

func validateHistorySettings(s *Settings) error {
	if s.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be positive")
	}
	return nil
}

func validateSchedulerSettings(s *Settings) error {
	iv := s.Scheduler.Interval
	if iv < MinSchedulerInterval || iv > MaxSchedulerInterval {
		return fmt.Errorf("scheduler.interval must be between %s and %s", MinSchedulerInterval, MaxSchedulerInterval)
	}
	if iv < s.Capture.RecordWindow {
		return fmt.Errorf("scheduler.interval must not be shorter than capture.recordwindow")
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	w := &s.WebServer
	if !w.Enabled {
		return nil
	}
	if w.Listen == "" {
		return fmt.Errorf("webserver.listen must be set")
	}
	if !strings.Contains(w.SearchURLTemplate, "%s") {
		return fmt.Errorf("webserver.searchurltemplate must contain %%s")
	}
	if _, err := url.Parse(strings.ReplaceAll(w.SearchURLTemplate, "%s", "q")); err != nil {
		return fmt.Errorf("webserver.searchurltemplate: %w", err)
	}
	if w.IdentifyRateLimit <= 0 {
		return fmt.Errorf("webserver.identifyratelimit must be positive")
	}
	return nil
}

func validateDatastoreSettings(s *Settings) error {
	switch s.Datastore.Type {
	case "sqlite":
		if s.Datastore.SQLite.Path == "" {
			return fmt.Errorf("datastore.sqlite.path must be set")
		}
	case "mysql":
		m := s.Datastore.MySQL
		if m.Host == "" || m.Database == "" || m.Username == "" {
			return fmt.Errorf("datastore.mysql requires host, database and username")
		}
	default:
		return fmt.Errorf("datastore.type must be sqlite or mysql, got %q", s.Datastore.Type)
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if s.MQTT.Enabled && (s.MQTT.Broker == "" || s.MQTT.Topic == "") {
		return fmt.Errorf("mqtt requires broker and topic when enabled")
	}
	return nil
}

func validateNotificationSettings(s *Settings) error {
	if s.Notification.Enabled && len(s.Notification.URLs) == 0 {
		return fmt.Errorf("notification requires at least one url when enabled")
	}
	return nil
}
