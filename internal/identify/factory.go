package identify

import (
	"strings"

	"github.com/tphakala/trackid-go/internal/conf"
	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/httpclient"
)

// NewRecognizer builds the configured backend chain. A single backend is
// returned unwrapped.
func NewRecognizer(settings *conf.IdentifySettings, client *httpclient.Client) (Recognizer, error) {
	if client == nil {
		client = httpclient.New(&httpclient.Config{DefaultTimeout: settings.Timeout})
	}

	var chain Chain
	for _, name := range settings.Backends {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case ServiceACRCloud:
			chain = append(chain, NewACRCloud(ACRCloudConfig{
				Host:             settings.ACRCloud.Host,
				AccessKey:        settings.ACRCloud.AccessKey,
				AccessSecret:     settings.ACRCloud.AccessSecret,
				SignatureVersion: settings.ACRCloud.SignatureVersion,
				UnknownArtist:    settings.UnknownArtist,
			}, client))
		case ServiceAudD:
			chain = append(chain, NewAudD(AudDConfig{
				Endpoint:      settings.AudD.Endpoint,
				APIToken:      settings.AudD.APIToken,
				UnknownArtist: settings.UnknownArtist,
			}, client))
		default:
			return nil, errors.Newf("unknown identification backend %q", name).
				Component("identify").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}

	switch len(chain) {
	case 0:
		return nil, errors.Newf("no identification backends configured").
			Component("identify").
			Category(errors.CategoryConfiguration).
			Build()
	case 1:
		return chain[0], nil
	default:
		return chain, nil
	}
}
