// discovery.go: Home Assistant MQTT auto-discovery implementation.
// See: https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
)

// Sensor type constants
const (
	SensorTitle      = "title"
	SensorArtist     = "artist"
	SensorAlbum      = "album"
	SensorConfidence = "confidence"
)

// AllSensorTypes lists all sensor types for iteration (e.g., during removal)
var AllSensorTypes = []string{SensorTitle, SensorArtist, SensorAlbum, SensorConfidence}

const deviceIDPrefix = "trackid"

// idSanitizer replaces invalid characters in IDs with underscores.
// Home Assistant requires IDs to contain only [a-zA-Z0-9_-].
var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeID ensures the ID contains only valid characters for MQTT topics and HA entity IDs.
func SanitizeID(id string) string {
	sanitized := idSanitizer.ReplaceAllString(id, "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unknown"
	}
	return sanitized
}

// DiscoveryPayload represents a Home Assistant MQTT discovery message.
type DiscoveryPayload struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	ValueTemplate     string          `json:"value_template,omitempty"`
	UnitOfMeasurement string          `json:"unit_of_measurement,omitempty"`
	Icon              string          `json:"icon,omitempty"`
	JSONAttributes    string          `json:"json_attributes_topic,omitempty"`
	Device            DiscoveryDevice `json:"device"`
}

// DiscoveryDevice represents the device information in a discovery payload.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryConfig holds configuration for generating discovery payloads.
type DiscoveryConfig struct {
	DiscoveryPrefix string // Home Assistant discovery topic prefix (default: homeassistant)
	StateTopic      string // topic carrying NowPlayingDTO messages
	NodeID          string // node identifier, typically the MQTT client id
	Version         string // software version
}

type sensorSpec struct {
	kind     string
	name     string
	template string
	unit     string
	icon     string
}

var sensorSpecs = []sensorSpec{
	{SensorTitle, "Now Playing", "{{ value_json.title }}", "", "mdi:music-note"},
	{SensorArtist, "Artist", "{{ value_json.artist }}", "", "mdi:account-music"},
	{SensorAlbum, "Album", "{{ value_json.album | default('') }}", "", "mdi:album"},
	{SensorConfidence, "Match Confidence", "{{ value_json.confidence | default(0) }}", "%", "mdi:percent"},
}

// DiscoveryTopic returns the config topic for one sensor.
func DiscoveryTopic(cfg DiscoveryConfig, sensor string) string {
	node := SanitizeID(cfg.NodeID)
	return fmt.Sprintf("%s/sensor/%s_%s/%s/config", cfg.DiscoveryPrefix, deviceIDPrefix, node, sensor)
}

// BuildDiscoveryPayloads returns the config payload of every sensor keyed by
// topic.
func BuildDiscoveryPayloads(cfg DiscoveryConfig) map[string]DiscoveryPayload {
	node := SanitizeID(cfg.NodeID)
	device := DiscoveryDevice{
		Identifiers:  []string{deviceIDPrefix + "_" + node},
		Name:         "trackid " + cfg.NodeID,
		Manufacturer: "trackid",
		Model:        "Stream identifier",
		SWVersion:    cfg.Version,
	}
	out := make(map[string]DiscoveryPayload, len(sensorSpecs))
	for _, s := range sensorSpecs {
		out[DiscoveryTopic(cfg, s.kind)] = DiscoveryPayload{
			Name:              s.name,
			UniqueID:          fmt.Sprintf("%s_%s_%s", deviceIDPrefix, node, s.kind),
			StateTopic:        cfg.StateTopic,
			ValueTemplate:     s.template,
			UnitOfMeasurement: s.unit,
			Icon:              s.icon,
			JSONAttributes:    cfg.StateTopic,
			Device:            device,
		}
	}
	return out
}

// PublishDiscovery publishes retained discovery configs for all sensors.
func PublishDiscovery(ctx context.Context, c Client, cfg DiscoveryConfig) error {
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	var errs []error
	for topic, payload := range BuildDiscoveryPayloads(cfg) {
		data, err := json.Marshal(payload)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := c.Publish(ctx, topic, data, true); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.New(errors.Join(errs...)).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "discovery").
			Build()
	}
	GetLogger().Info("home assistant discovery published", logger.Int("sensors", len(sensorSpecs)))
	return nil
}

// RemoveDiscovery clears the retained discovery configs.
func RemoveDiscovery(ctx context.Context, c Client, cfg DiscoveryConfig) error {
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	var errs []error
	for _, sensor := range AllSensorTypes {
		if err := c.Publish(ctx, DiscoveryTopic(cfg, sensor), nil, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
