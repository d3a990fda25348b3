package realtime

import (
	"os"
	"strings"
)

// Defaults for the optional connection parameters.
const (
	DefaultResourceID = "volc.speech.dialog"
	DefaultAppKey     = "PlgvMymc7f3tQnJ6"
	DefaultURL        = "wss://openspeech.bytedance.com/api/v3/realtime/dialogue"
)

// Config holds the resolved connection parameters for the dialogue
// service. All values travel as handshake headers, not protocol fields.
type Config struct {
	AppID      string
	AccessKey  string
	ResourceID string
	AppKey     string
	URL        string
}

// ConfigProvider resolves connection parameters for one probe attempt.
// Protocol logic never reads ambient state directly; the provider is
// injected so the session client is testable against a fake endpoint.
type ConfigProvider interface {
	Resolve() (Config, error)
}

// EnvConfig resolves configuration from process environment variables.
type EnvConfig struct{}

// Resolve fails with a ConfigError naming the first missing required
// variable. Optional values fall back to the documented defaults.
func (EnvConfig) Resolve() (Config, error) {
	appID, err := requireEnv("DOUBAO_APP_ID")
	if err != nil {
		return Config{}, err
	}
	accessKey, err := requireEnv("DOUBAO_ACCESS_KEY")
	if err != nil {
		return Config{}, err
	}
	return Config{
		AppID:      appID,
		AccessKey:  accessKey,
		ResourceID: envOr("DOUBAO_RESOURCE_ID", DefaultResourceID),
		AppKey:     envOr("DOUBAO_APP_KEY", DefaultAppKey),
		URL:        envOr("DOUBAO_REALTIME_WS_URL", DefaultURL),
	}, nil
}

func requireEnv(name string) (string, error) {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return "", &ConfigError{Variable: name}
	}
	return val, nil
}

func envOr(name, fallback string) string {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return fallback
	}
	return val
}
