// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default encoding preference, most preferred first. audio/wav is the generic
// fallback every runtime can produce.
var DefaultEncodings = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg;codecs=opus",
	"audio/wav",
}

const (
	DefaultRecordWindow      = 20 * time.Second
	DefaultSchedulerInterval = 30 * time.Second
	DefaultDedupWindow       = 2 * time.Hour
	DefaultHistoryCapacity   = 50
	DefaultMinSampleBytes    = 5000
	DefaultUnknownArtist     = "Unknown Artist"
)

func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("stream.url", "")
	viper.SetDefault("stream.ffmpegpath", "ffmpeg")
	viper.SetDefault("stream.connecttimeout", 10*time.Second)
	viper.SetDefault("stream.output", "none")
	viper.SetDefault("stream.volume", 1.0)
	viper.SetDefault("stream.muted", false)

	viper.SetDefault("capture.recordwindow", DefaultRecordWindow)
	viper.SetDefault("capture.chunkinterval", time.Second)
	viper.SetDefault("capture.minsamplebytes", DefaultMinSampleBytes)
	viper.SetDefault("capture.tapseconds", 40)
	viper.SetDefault("capture.encodings", DefaultEncodings)
	viper.SetDefault("capture.bitrate", 64000)

	viper.SetDefault("identify.backends", []string{"acrcloud"})
	viper.SetDefault("identify.timeout", 20*time.Second)
	viper.SetDefault("identify.unknownartist", DefaultUnknownArtist)
	viper.SetDefault("identify.acrcloud.host", "identify-eu-west-1.acrcloud.com")
	viper.SetDefault("identify.acrcloud.signatureversion", "1")
	viper.SetDefault("identify.audd.endpoint", "https://api.audd.io/")

	viper.SetDefault("artwork.enabled", true)
	viper.SetDefault("artwork.provider", "itunes")
	viper.SetDefault("artwork.cachettl", 24*time.Hour)
	viper.SetDefault("artwork.itunes.endpoint", "https://itunes.apple.com/search")
	viper.SetDefault("artwork.itunes.country", "US")
	viper.SetDefault("artwork.itunes.ratelimit", 0.3)

	viper.SetDefault("dedup.window", DefaultDedupWindow)
	viper.SetDefault("dedup.similarity", 1.0)

	viper.SetDefault("history.capacity", DefaultHistoryCapacity)
	viper.SetDefault("history.persist", true)

	viper.SetDefault("scheduler.enabled", false)
	viper.SetDefault("scheduler.interval", DefaultSchedulerInterval)
	viper.SetDefault("scheduler.immediatefirst", false)

	viper.SetDefault("status.clearafter", 5*time.Second)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", "127.0.0.1:8080")
	viper.SetDefault("webserver.searchurltemplate", "https://www.youtube.com/results?search_query=%s")
	viper.SetDefault("webserver.identifyratelimit", 1.0)

	viper.SetDefault("datastore.type", "sqlite")
	viper.SetDefault("datastore.sqlite.path", "trackid.db")
	viper.SetDefault("datastore.mysql.port", 3306)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.clientid", "trackid")
	viper.SetDefault("mqtt.topic", "trackid/nowplaying")
	viper.SetDefault("mqtt.retain", true)
	viper.SetDefault("mqtt.homeassistant.enabled", false)
	viper.SetDefault("mqtt.homeassistant.discoveryprefix", "homeassistant")

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.timeout", 10*time.Second)

	viper.SetDefault("sentry.enabled", false)

	viper.SetDefault("eventbus.buffersize", 256)
	viper.SetDefault("eventbus.workers", 1)

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/trackid.log")
	viper.SetDefault("logging.fileoutput.level", "info")
}
