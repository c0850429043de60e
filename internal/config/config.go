package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	SumUp     SumUpConfig
	Turnstile TurnstileConfig
	Email     EmailConfig
	Auth      AuthConfig
	Redis     RedisConfig
	OSS       OSSConfig
	CORS      CORSConfig
	Renewal   RenewalConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port  string
	Debug bool
}

type DBConfig struct {
	Driver   string // "mysql" or "sqlite"
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	// SQLitePath is used when Driver is "sqlite".
	SQLitePath string
}

type SumUpConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	MerchantCode  string
	WebhookSecret string
	// ReturnURL is where SumUp sends the customer back after hosted checkout.
	ReturnURL string
}

type TurnstileConfig struct {
	Secret string
}

type EmailConfig struct {
	BaseURL   string
	APIKey    string
	From      string
	AdminAddr string
}

type AuthConfig struct {
	JWTSecret  string
	AdminKey   string
	SessionTTL time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type OSSConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

type CORSConfig struct {
	Origins []string
}

type RenewalConfig struct {
	WarningDays int
	GraceDays   int
	MaxAttempts int
	// Pacing is the delay between consecutive charge attempts in a sweep,
	// a soft rate limit against the payment provider.
	Pacing time.Duration
	// SweepInterval enables an in-process sweep ticker when > 0. Deployments
	// with an external scheduler leave it at 0 and hit /admin/renewals/run.
	SweepInterval time.Duration
}

type RateLimitConfig struct {
	MembershipLimit  int
	MembershipWindow time.Duration
	EventLimit       int
	EventWindow      time.Duration
}

func (c *DBConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using process environment")
	}

	return &Config{
		Server: ServerConfig{
			Port:  getEnv("PORT", "8080"),
			Debug: getBool("DEBUG", false),
		},
		DB: DBConfig{
			Driver:     getEnv("DB_DRIVER", "mysql"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "3306"),
			User:       getEnv("DB_USER", "dicebastion"),
			Password:   getEnv("DB_PASSWORD", ""),
			DBName:     getEnv("DB_NAME", "dicebastion"),
			SQLitePath: getEnv("SQLITE_PATH", "dicebastion.db"),
		},
		SumUp: SumUpConfig{
			BaseURL:       getEnv("SUMUP_BASE_URL", "https://api.sumup.com"),
			ClientID:      getEnv("SUMUP_CLIENT_ID", ""),
			ClientSecret:  getEnv("SUMUP_CLIENT_SECRET", ""),
			MerchantCode:  getEnv("SUMUP_MERCHANT_CODE", ""),
			WebhookSecret: getEnv("SUMUP_WEBHOOK_SECRET", ""),
			ReturnURL:     getEnv("SUMUP_RETURN_URL", ""),
		},
		Turnstile: TurnstileConfig{
			Secret: getEnv("TURNSTILE_SECRET", ""),
		},
		Email: EmailConfig{
			BaseURL:   getEnv("EMAIL_API_URL", "https://api.resend.com"),
			APIKey:    getEnv("EMAIL_API_KEY", ""),
			From:      getEnv("EMAIL_FROM", "Dice Bastion <noreply@dicebastion.com>"),
			AdminAddr: getEnv("ADMIN_EMAIL", "admin@dicebastion.com"),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			AdminKey:   getEnv("ADMIN_KEY", ""),
			SessionTTL: getDuration("SESSION_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		OSS: OSSConfig{
			Endpoint:        getEnv("OSS_ENDPOINT", ""),
			AccessKeyID:     getEnv("OSS_ACCESS_KEY_ID", ""),
			AccessKeySecret: getEnv("OSS_ACCESS_KEY_SECRET", ""),
			Bucket:          getEnv("OSS_BUCKET", ""),
		},
		CORS: CORSConfig{
			Origins: splitList(getEnv("CORS_ORIGINS", "*")),
		},
		Renewal: RenewalConfig{
			WarningDays:   getInt("RENEWAL_WARNING_DAYS", 7),
			GraceDays:     getInt("RENEWAL_GRACE_DAYS", 30),
			MaxAttempts:   getInt("RENEWAL_MAX_ATTEMPTS", 3),
			Pacing:        getDuration("RENEWAL_PACING", 500*time.Millisecond),
			SweepInterval: getDuration("RENEWAL_SWEEP_INTERVAL", 0),
		},
		RateLimit: RateLimitConfig{
			MembershipLimit:  getInt("RATE_LIMIT_MEMBERSHIP", 5),
			MembershipWindow: getDuration("RATE_LIMIT_MEMBERSHIP_WINDOW", 10*time.Minute),
			EventLimit:       getInt("RATE_LIMIT_EVENTS", 10),
			EventWindow:      getDuration("RATE_LIMIT_EVENTS_WINDOW", 10*time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid integer env value, using default")
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid duration env value, using default")
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
