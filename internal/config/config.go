package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// HardPageCap is the safety limit on pagination, regardless of flags or env.
const HardPageCap = 20

type Config struct {
	Agent    AgentConfig
	Browser  BrowserConfig
	Scraper  ScraperConfig
	Output   OutputConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

// AgentConfig configures the hosted browser-automation agent API.
type AgentConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	UserDataDir    string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	UserAgent      string
}

type ScraperConfig struct {
	StartURL     string
	MaxPages     int
	RateLimitMin time.Duration
	RateLimitMax time.Duration
	NavRetries   int
}

type OutputConfig struct {
	Dir       string
	StateFile string
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// defaultStartURL is the heroes listing filtered the way the run expects:
// sorted by position, all categories, North America.
const defaultStartURL = "https://aws.amazon.com/developer/community/heroes/" +
	"?community-heroes-all.sort-by=item.additionalFields.sortPosition" +
	"&community-heroes-all.sort-order=asc" +
	"&awsf.filter-hero-category=*all" +
	"&awsf.filter-location=location%23namer" +
	"&awsf.filter-year=*all" +
	"&awsf.filter-activity=*all"

func Load() (*Config, error) {
	cfg := &Config{
		Agent: AgentConfig{
			APIKey:     os.Getenv("NOVA_ACT_API_KEY"),
			BaseURL:    getEnvOrDefault("NOVA_ACT_API_URL", "https://api.nova-act.aws.dev/v1"),
			Timeout:    getDurationOrDefault("NOVA_ACT_TIMEOUT", 90*time.Second),
			MaxRetries: getIntOrDefault("NOVA_ACT_MAX_RETRIES", 3),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			UserDataDir:    getEnvOrDefault("BROWSER_USER_DATA_DIR", ""),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/Los_Angeles"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
		},
		Scraper: ScraperConfig{
			StartURL:     getEnvOrDefault("HEROES_START_URL", defaultStartURL),
			MaxPages:     getIntOrDefault("SCRAPER_MAX_PAGES", HardPageCap),
			RateLimitMin: getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 2*time.Second),
			RateLimitMax: getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 5*time.Second),
			NavRetries:   getIntOrDefault("SCRAPER_NAV_RETRIES", 3),
		},
		Output: OutputConfig{
			Dir:       getEnvOrDefault("OUTPUT_DIR", "./output/heroes"),
			StateFile: getEnvOrDefault("STATE_FILE", "./state/heroes.json"),
		},
		Server: ServerConfig{
			Port:            getIntOrDefault("PORT", 8086),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("HERO_ARCHIVE_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "aws_heroes"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	// The login session helper leaves the saved profile path in a
	// .user_data_dir file next to the binary.
	if cfg.Browser.UserDataDir == "" {
		if data, err := os.ReadFile(".user_data_dir"); err == nil {
			cfg.Browser.UserDataDir = strings.TrimSpace(string(data))
		}
	}

	return cfg, nil
}

// Validate checks settings every binary needs. The agent API key is checked
// separately via ValidateAgent because only scraping runs require it.
func (c *Config) Validate() error {
	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("SCRAPER_MAX_PAGES must be at least 1")
	}

	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}

	if c.Scraper.StartURL == "" {
		return fmt.Errorf("HEROES_START_URL must not be empty")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Enabled && c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required when the hero archive is enabled")
	}

	return nil
}

// ValidateAgent verifies the agent API credentials are present. A missing key
// aborts before any scraping starts.
func (c *Config) ValidateAgent() error {
	if c.Agent.APIKey == "" {
		return fmt.Errorf("NOVA_ACT_API_KEY environment variable is not set")
	}
	return nil
}

// EffectiveMaxPages clamps the requested page count to the hard safety cap.
func (c *Config) EffectiveMaxPages() int {
	if c.Scraper.MaxPages > HardPageCap {
		return HardPageCap
	}
	return c.Scraper.MaxPages
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
