// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/NERVsystems/geoquery/pkg/geoerr"
	"github.com/NERVsystems/geoquery/pkg/remote"
	"github.com/NERVsystems/geoquery/pkg/tools"
	"github.com/joho/godotenv"
)

type Config struct {
	APIKey      string
	ProfileID   string
	MapboxToken string
	ServerURL   string

	// Catalog is the tool set assumed available before connecting.
	Catalog []string

	ConnectTimeout    time.Duration
	CallTimeout       time.Duration
	CloseTimeout      time.Duration
	InvokeMaxAttempts int
	InvokeRetryDelay  time.Duration
	ConnectRate       float64
	ConnectBurst      int

	Addr       string
	LogLevel   string
	LogConsole bool

	RedisAddr     string
	StatusChannel string

	MetricsEnabled bool
}

// Load reads .env files when present and then the environment. Missing
// .env files are not an error.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
	return FromEnv()
}

func FromEnv() Config {
	def := remote.DefaultOptions()
	return Config{
		APIKey:      credential("SMITHERY_API_KEY"),
		ProfileID:   credential("SMITHERY_PROFILE_ID"),
		MapboxToken: credential("MAPBOX_ACCESS_TOKEN"),
		ServerURL:   getenv("MCP_SERVER_URL", remote.DefaultServerURL),
		Catalog:     getlist("GEOQUERY_TOOLS", tools.DefaultCatalog()),

		ConnectTimeout:    getduration("CONNECT_TIMEOUT", def.ConnectTimeout),
		CallTimeout:       getduration("CALL_TIMEOUT", def.CallTimeout),
		CloseTimeout:      getduration("CLOSE_TIMEOUT", def.CloseTimeout),
		InvokeMaxAttempts: getint("INVOKE_MAX_ATTEMPTS", def.Retry.MaxAttempts),
		InvokeRetryDelay:  getduration("INVOKE_RETRY_DELAY", def.Retry.Delay),
		ConnectRate:       getfloat("CONNECT_RATE", def.ConnectRate),
		ConnectBurst:      getint("CONNECT_BURST", def.ConnectBurst),

		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		StatusChannel: getenv("STATUS_CHANNEL", "geoquery:status"),

		MetricsEnabled: getbool("METRICS_ENABLED", true),
	}
}

// Validate reports missing credentials as a configuration error carrying
// the "unavailable" user message.
func (c Config) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "SMITHERY_API_KEY")
	}
	if c.ProfileID == "" {
		missing = append(missing, "SMITHERY_PROFILE_ID")
	}
	if c.MapboxToken == "" {
		missing = append(missing, "MAPBOX_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return geoerr.Configuration(geoerr.MsgUnavailable,
			errors.New("missing "+strings.Join(missing, ", ")))
	}
	return nil
}

// RemoteOptions maps the timeout and retry settings onto remote.Options.
func (c Config) RemoteOptions() remote.Options {
	return remote.Options{
		ConnectTimeout: c.ConnectTimeout,
		CallTimeout:    c.CallTimeout,
		CloseTimeout:   c.CloseTimeout,
		Retry: remote.RetryPolicy{
			MaxAttempts: c.InvokeMaxAttempts,
			Delay:       c.InvokeRetryDelay,
		},
		ConnectRate:  c.ConnectRate,
		ConnectBurst: c.ConnectBurst,
	}
}

// Endpoint builds the tool host URL with credentials.
func (c Config) Endpoint() (string, error) {
	return remote.Endpoint(c.ServerURL, c.APIKey, c.ProfileID, c.MapboxToken)
}

// LogFields returns slog key/value pairs with credentials masked.
func (c Config) LogFields() []any {
	return []any{
		"server", remote.RedactURL(c.ServerURL),
		"profile", c.ProfileID,
		"api_key", Mask(c.APIKey),
		"mapbox_token", Mask(c.MapboxToken),
		"catalog", c.Catalog,
	}
}

// Mask hides all but the last four characters of a secret.
func Mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}

// credential reads key, falling back to the NEXT_PUBLIC_ prefixed name.
func credential(key string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv("NEXT_PUBLIC_" + key))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getlist parses a comma separated list, dropping blanks.
func getlist(k string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	var out []string
	for p := range strings.SplitSeq(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
