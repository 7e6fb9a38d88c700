package market

import (
	"errors"
	"fmt"
	"regexp"
)

// Session tokens travel as socket.io auth frames. A raw opaque session string
// from the browser is wrapped into the full frame; tokens captured whole are
// passed through unchanged.
const authFramePrefix = `42["auth"`

var ssidPattern = regexp.MustCompile(`^42\["auth",\{.*\}\]$`)

// FormatSSID returns the full auth frame for a session token.
func FormatSSID(token string, demo bool) string {
	if token == "" {
		return ""
	}
	if len(token) >= len(authFramePrefix) && token[:len(authFramePrefix)] == authFramePrefix {
		return token
	}
	isDemo := 0
	if demo {
		isDemo = 1
	}
	return fmt.Sprintf(`42["auth",{"session":"%s","isDemo":%d,"uid":0,"platform":1}]`, token, isDemo)
}

// ValidateSSID checks that a formatted token matches the auth frame shape.
func ValidateSSID(ssid string) error {
	if ssid == "" {
		return errors.New("market: ssid is empty")
	}
	if !ssidPattern.MatchString(ssid) {
		return fmt.Errorf("market: ssid is not a valid auth frame (%d chars)", len(ssid))
	}
	return nil
}
