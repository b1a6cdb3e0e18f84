package config

import "errors"

// ClientConfig is what a call-support client needs to reach the service.
type ClientConfig struct {
	ServerURL   string
	Token       string
	UserID      string
	DisplayName string
	LogLevel    string
}

// LoadClient reads CALLSUPPORT_* variables.
func LoadClient() *ClientConfig {
	return &ClientConfig{
		ServerURL:   getEnv("CALLSUPPORT_URL", "http://localhost:8080"),
		Token:       getEnv("CALLSUPPORT_TOKEN", ""),
		UserID:      getEnv("CALLSUPPORT_USER_ID", ""),
		DisplayName: getEnv("CALLSUPPORT_NAME", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports whether the client can authenticate: either a token and
// user id, or a display name to log in with.
func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("CALLSUPPORT_URL is required")
	}
	if (c.Token == "" || c.UserID == "") && c.DisplayName == "" {
		return errors.New("set CALLSUPPORT_TOKEN and CALLSUPPORT_USER_ID, or CALLSUPPORT_NAME to log in")
	}
	return nil
}
