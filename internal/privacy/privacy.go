// Package privacy removes credentials from stream URLs and messages before
// they reach logs.
package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

const redacted = "REDACTED"

var urlPattern = regexp.MustCompile(`\b(?:https?|icy|rtsp|rtmp|mms)://[^\s"']+`)

// query parameters whose values are treated as credentials
var sensitiveParams = []string{
	"token", "key", "apikey", "api_key", "api_token", "access_key", "auth",
	"password", "pass", "secret", "sig", "signature", "session", "sid",
}

// SanitizeURL strips the password from the user info and redacts the values
// of credential-like query parameters. Unparseable input is replaced whole.
func SanitizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "[invalid-url]"
	}

	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
	}

	if u.RawQuery != "" {
		q := u.Query()
		changed := false
		for name := range q {
			if isSensitiveParam(name) {
				q.Set(name, redacted)
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}
	return u.String()
}

// ScrubMessage sanitizes every URL found in message.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, SanitizeURL)
}

func isSensitiveParam(name string) bool {
	name = strings.ToLower(name)
	for _, p := range sensitiveParams {
		if name == p || strings.HasSuffix(name, "_"+p) {
			return true
		}
	}
	return false
}
