package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	TokenTTL        time.Duration `mapstructure:"TOKEN_TTL"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ReportTimeout   time.Duration `mapstructure:"REPORT_TIMEOUT"`
	BodyLimit       string        `mapstructure:"BODY_LIMIT"`
	HospitalName    string        `mapstructure:"HOSPITAL_NAME"`
	HospitalAddress string        `mapstructure:"HOSPITAL_ADDRESS"`
	HospitalPhone   string        `mapstructure:"HOSPITAL_PHONE"`
	Currency        string        `mapstructure:"CURRENCY"`
	LowStockScanAt  string        `mapstructure:"LOW_STOCK_SCAN_AT"`
	DayCloseAt      string        `mapstructure:"DAY_CLOSE_AT"`
}

// minSecretLen is the minimum HS256 key length accepted outside development.
const minSecretLen = 32

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SECRET", "TOKEN_TTL", "CORS_ORIGINS", "RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "REPORT_TIMEOUT", "BODY_LIMIT",
	"HOSPITAL_NAME", "HOSPITAL_ADDRESS", "HOSPITAL_PHONE", "CURRENCY",
	"LOW_STOCK_SCAN_AT", "DAY_CLOSE_AT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("TOKEN_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("REPORT_TIMEOUT", "2m")
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("HOSPITAL_NAME", "General Hospital")
	v.SetDefault("CURRENCY", "INR")
	v.SetDefault("LOW_STOCK_SCAN_AT", "08:00")
	v.SetDefault("DAY_CLOSE_AT", "00:05")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: requests without a bearer token are treated as admin.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SigningKey returns the HS256 key for access tokens. In development an
// empty secret falls back to a fixed key so the server can boot locally.
func (c *Config) SigningKey() []byte {
	if c.JWTSecret == "" && c.IsDev() {
		return []byte("development-only-signing-key-do-not-use")
	}
	return []byte(c.JWTSecret)
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
		}
		if len(c.JWTSecret) < minSecretLen {
			return fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", minSecretLen, len(c.JWTSecret))
		}
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := c.BodyLimitBytes(); err != nil {
		return err
	}
	for name, at := range map[string]string{"LOW_STOCK_SCAN_AT": c.LowStockScanAt, "DAY_CLOSE_AT": c.DayCloseAt} {
		if _, err := time.Parse("15:04", at); err != nil {
			return fmt.Errorf("%s must be HH:MM, got %q", name, at)
		}
	}
	return nil
}

// BodyLimitBytes parses BODY_LIMIT: a byte count with an optional K, M or G
// suffix ("512K", "2M"). An empty value means 2 MB.
func (c *Config) BodyLimitBytes() (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(c.BodyLimit))
	if s == "" {
		return 2 << 20, nil
	}
	s = strings.TrimSuffix(s, "B")
	shift := 0
	switch {
	case strings.HasSuffix(s, "K"):
		shift = 10
	case strings.HasSuffix(s, "M"):
		shift = 20
	case strings.HasSuffix(s, "G"):
		shift = 30
	}
	if shift > 0 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("BODY_LIMIT must look like 512K or 2M, got %q", c.BodyLimit)
	}
	return n << shift, nil
}
