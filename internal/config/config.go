// Package config provides configuration management for the stream resolver.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultUserAgent is the desktop Chrome user agent presented to the origin.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36"

// Config holds all configuration for the stream resolver service.
type Config struct {
	// Server settings
	Port               int
	LogLevel           string
	LogFiltersFile     string
	RateLimitPerMinute int
	IdleTimeout        time.Duration // exit after this long without activity; 0 disables

	// Browser session settings
	ChromePath        string
	Headless          bool
	DisableStealth    bool
	UseBrowser        bool // load video pages in the browser session; false tries plain HTTP first
	DismissConsent    bool
	NavigationTimeout time.Duration
	SessionMaxIdle    time.Duration

	// Proxy settings
	ProxyEnabled bool
	ProxyURL     string

	// Origin settings
	OriginBaseURL   string
	OriginLoginURL  string
	OriginUserAgent string
	GamerUser       string
	GamerPassword   string

	// Negotiation settings
	AdDwell            time.Duration
	PollInterval       time.Duration
	PollAttempts       int
	MaxRotations       int
	NegotiationTimeout time.Duration
	FinalizeTimeout    time.Duration
	HTTPTimeout        time.Duration

	// Cache settings
	CacheTTL            time.Duration
	CacheRefreshHorizon time.Duration
	CacheSweepInterval  time.Duration

	// Challenge solving settings
	ChallengeWaitTime time.Duration
	TwoCaptchaAPIKey  string
	CapSolverAPIKey   string
}

// Load creates a Config from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:               getEnvInt("PORT", 3000),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFiltersFile:     getEnv("LOG_FILTERS_FILE", ""),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		IdleTimeout:        getEnvDuration("IDLE_TIMEOUT", 0),

		ChromePath:        getEnv("CHROME_PATH", ""),
		Headless:          getEnvBool("BROWSER_HEADLESS", true),
		DisableStealth:    getEnvBool("DISABLE_STEALTH", false),
		UseBrowser:        getEnvBool("USE_BROWSER", true),
		DismissConsent:    getEnvBool("DISMISS_CONSENT", true),
		NavigationTimeout: getEnvDuration("NAVIGATION_TIMEOUT", 30*time.Second),
		SessionMaxIdle:    getEnvDuration("SESSION_MAX_IDLE", 30*time.Minute),

		ProxyEnabled: getEnvBool("PROXY_ENABLED", false),
		ProxyURL:     getEnv("PROXY_URL", ""),

		OriginBaseURL:   strings.TrimRight(getEnv("ORIGIN_BASE_URL", "https://ani.gamer.com.tw"), "/"),
		OriginLoginURL:  getEnv("ORIGIN_LOGIN_URL", "https://api.gamer.com.tw/mobile_app/user/v3/do_login.php"),
		OriginUserAgent: getEnv("ORIGIN_USER_AGENT", DefaultUserAgent),
		GamerUser:       getEnv("GAMER_USER", ""),
		GamerPassword:   getEnv("GAMER_PASSWORD", ""),

		AdDwell:            getEnvDuration("AD_DWELL", 25*time.Second),
		PollInterval:       getEnvDuration("POLL_INTERVAL", 5*time.Second),
		PollAttempts:       getEnvInt("POLL_ATTEMPTS", 10),
		MaxRotations:       getEnvInt("MAX_ROTATIONS", 3),
		NegotiationTimeout: getEnvDuration("NEGOTIATION_TIMEOUT", 3*time.Minute),
		FinalizeTimeout:    getEnvDuration("FINALIZE_TIMEOUT", 10*time.Second),
		HTTPTimeout:        getEnvDuration("HTTP_TIMEOUT", 15*time.Second),

		CacheTTL:            getEnvDuration("CACHE_TTL", 55*time.Minute),
		CacheRefreshHorizon: getEnvDuration("CACHE_REFRESH_HORIZON", 10*time.Minute),
		CacheSweepInterval:  getEnvDuration("CACHE_SWEEP_INTERVAL", 30*time.Minute),

		ChallengeWaitTime: getEnvDuration("CHALLENGE_WAIT_TIME", 30*time.Second),
		TwoCaptchaAPIKey:  getEnv("TWOCAPTCHA_API_KEY", ""),
		CapSolverAPIKey:   getEnv("CAPSOLVER_API_KEY", getEnv("CAPTCHA_API_KEY", "")),
	}
}

// HasCredentials reports whether an origin account is configured.
func (c *Config) HasCredentials() bool {
	return c.GamerUser != "" && c.GamerPassword != ""
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
