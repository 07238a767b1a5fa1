package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSigningKey    string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer        string        `mapstructure:"JWT_ISSUER"`
	AccessTokenTTL   time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL  time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	BcryptCost       int           `mapstructure:"BCRYPT_COST"`
	PHIEncryptionKey string        `mapstructure:"PHI_ENCRYPTION_KEY"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
	AutoMigrate      bool          `mapstructure:"AUTO_MIGRATE"`
}

// minSigningKeyLen is the shortest HMAC secret accepted for HS256 tokens.
const minSigningKeyLen = 32

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_ISSUER", "clinic-api")
	v.SetDefault("ACCESS_TOKEN_TTL", "5m")
	v.SetDefault("REFRESH_TOKEN_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("AUTO_MIGRATE", false)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"JWT_SIGNING_KEY", "JWT_ISSUER", "ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL",
		"BCRYPT_COST", "PHI_ENCRYPTION_KEY", "CORS_ORIGINS", "BODY_LIMIT",
		"MIGRATIONS_DIR", "AUTO_MIGRATE",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.JWTSigningKey == "" {
		log.Println("WARNING: JWT_SIGNING_KEY is not set; a random key will be generated.")
		log.Println("WARNING: Issued tokens will not survive a restart. Do NOT run production like this.")
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

// Validate checks that the configuration is safe to run. Outside development
// a signing key of at least 32 bytes is required. PHI_ENCRYPTION_KEY, when
// set, must be a 64-character hex string (32 bytes when decoded).
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.JWTSigningKey != "" && len(c.JWTSigningKey) < minSigningKeyLen {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least %d bytes, got %d", minSigningKeyLen, len(c.JWTSigningKey))
	}

	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive, got %s", c.AccessTokenTTL)
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL (%s) must be longer than ACCESS_TOKEN_TTL (%s)", c.RefreshTokenTTL, c.AccessTokenTTL)
	}

	if c.IsProduction() && c.PHIEncryptionKey == "" {
		return fmt.Errorf("PHI_ENCRYPTION_KEY is required in production")
	}
	if c.PHIEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.PHIEncryptionKey)
		if err != nil {
			return fmt.Errorf("PHI_ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("PHI_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	return nil
}

// PHIKey returns the decoded PHI encryption key, or nil when none is configured.
// Call Validate first.
func (c *Config) PHIKey() []byte {
	if c.PHIEncryptionKey == "" {
		return nil
	}
	key, err := hex.DecodeString(c.PHIEncryptionKey)
	if err != nil {
		return nil
	}
	return key
}
