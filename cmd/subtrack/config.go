package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/subtrackhq/subtrack/internal/logger"
	"github.com/subtrackhq/subtrack/internal/service/auth"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultIdentityAPIURL  = "https://identitytoolkit.googleapis.com"
	defaultAccessTokenTTL  = 30 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Used to sign session tokens, so it must be long and random
	SecretKey string

	// Environment. Production enables Secure cookies and the __Host-
	// cookie name prefix
	Environment string

	// Identity provider REST endpoint and API key
	IdentityAPIURL string
	IdentityAPIKey string

	// Token lifetimes
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Password check mode: delegated (default) or local
	PasswordCheck string

	// Refresh rotation mode: stateless (default) or single_use
	RotationMode string

	// Origins allowed to make credentialed cross-origin requests
	AllowedOrigins []string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Environment:     defaultEnvironment,
		IdentityAPIURL:  defaultIdentityAPIURL,
		AccessTokenTTL:  defaultAccessTokenTTL,
		RefreshTokenTTL: defaultRefreshTokenTTL,
		PasswordCheck:   auth.PasswordCheckDelegated,
		RotationMode:    auth.RotationStateless,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if d, err := time.ParseDuration(value); err == nil && d > 0 {
				*o = d
			}
		}
	}
	setStrings := func(o *[]string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = strings.Split(value, ",")
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"SECRET_KEY":        setString(&c.SecretKey),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"ENVIRONMENT":       setString(&c.Environment),
		"IDENTITY_API_URL":  setString(&c.IdentityAPIURL),
		"IDENTITY_API_KEY":  setString(&c.IdentityAPIKey),
		"ACCESS_TOKEN_TTL":  setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL": setDuration(&c.RefreshTokenTTL),
		"PASSWORD_CHECK":    setString(&c.PasswordCheck),
		"ROTATION_MODE":     setString(&c.RotationMode),
		"ALLOWED_ORIGINS":   setStrings(&c.AllowedOrigins),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("subtrack", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, production)")
	fs.StringVar(&c.IdentityAPIURL, "identity-url", c.IdentityAPIURL, "Identity provider API URL")
	fs.StringVar(&c.IdentityAPIKey, "identity-key", c.IdentityAPIKey, "Identity provider API key")
	fs.StringVar(&c.PasswordCheck, "password-check", c.PasswordCheck, "Password check mode (delegated, local)")
	fs.StringVar(&c.RotationMode, "rotation-mode", c.RotationMode, "Refresh rotation mode (stateless, single_use)")
	fs.StringSliceVar(&c.AllowedOrigins, "allowed-origins", c.AllowedOrigins, "Origins allowed for credentialed CORS")

	return fs.Parse(args)
}

// Validate fails fast on settings that would start an insecure or
// non-functional server
func (c *Config) Validate() error {
	if len(c.SecretKey) < auth.MinSecretLen {
		return fmt.Errorf("secret key must be at least %d bytes long", auth.MinSecretLen)
	}
	if c.DatabaseDSN == "" {
		return errors.New("database connection string is required")
	}
	if c.IdentityAPIKey == "" {
		return errors.New("identity provider API key is required")
	}
	if c.Environment == logger.EnvProduction && c.PasswordCheck == auth.PasswordCheckLocal {
		return errors.New("local password check is not allowed in production")
	}

	return nil
}
