// Package config loads the connection parameters a client needs before
// it can dial: the WebSocket endpoint, handshake/query timeouts, and
// the browser/version identity advertised during login.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/waconnect/waconnect-go/internal/socket"
)

// Browser is the (platform, name, app version) triple advertised in the
// ClientPayload UserAgent during login and registration.
type Browser struct {
	Platform   string
	Name       string
	AppVersion string
}

// DefaultBrowser matches what a recent WhatsApp Web desktop client sends.
var DefaultBrowser = Browser{Platform: "Wha.ts", Name: "Desktop", AppVersion: "0.1"}

// Version is the three-component WhatsApp Web client version advertised
// during the Noise handshake and login.
type Version struct {
	Major, Minor, Patch int
}

// DefaultVersion is the WhatsApp Web protocol version this client speaks.
var DefaultVersion = Version{Major: 2, Minor: 3000, Patch: 1021636778}

// Config holds the parameters a Connection needs to dial and authenticate.
type Config struct {
	WebsocketURL          string
	ConnectTimeoutMs      int
	DefaultQueryTimeoutMs int
	Origin                string
	Browser               Browser
	Version               Version
}

// loadEnvFiles loads .env, then .env.{WACONNECT_ENV}, then .env.local,
// each overriding the last. Missing files are not an error.
func loadEnvFiles() {
	_ = godotenv.Load()
	if env := os.Getenv("WACONNECT_ENV"); env != "" {
		_ = godotenv.Load(".env." + env)
	}
	_ = godotenv.Load(".env.local")
}

// Load reads configuration from the environment, applying the same
// defaults a client would use if constructed with a zero Config.
func Load() *Config {
	loadEnvFiles()
	return &Config{
		WebsocketURL:          getEnv("WACONNECT_WEBSOCKET_URL", socket.DefaultURL),
		ConnectTimeoutMs:      getEnvInt("WACONNECT_CONNECT_TIMEOUT_MS", 20000),
		DefaultQueryTimeoutMs: getEnvInt("WACONNECT_QUERY_TIMEOUT_MS", 60000),
		Origin:                getEnv("WACONNECT_ORIGIN", ""),
		Browser:               parseBrowser(getEnv("WACONNECT_BROWSER", "")),
		Version:               DefaultVersion,
	}
}

// parseBrowser accepts a "platform,name,appVersion" override, falling
// back to DefaultBrowser on empty input or a malformed value.
func parseBrowser(raw string) Browser {
	if raw == "" {
		return DefaultBrowser
	}
	parts := strings.SplitN(raw, ",", 3)
	if len(parts) != 3 {
		return DefaultBrowser
	}
	return Browser{Platform: parts[0], Name: parts[1], AppVersion: parts[2]}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}
