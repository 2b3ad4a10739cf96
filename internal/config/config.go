package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Bot      BotConfig
	Storage  StorageConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Lock     LockConfig
	Roles    RolesConfig
	Features FeatureConfig
	Referral ReferralConfig
	Channels ChannelConfig
	Image    ImageConfig
}

type BotConfig struct {
	Token    string
	Username string
	Version  string
}

// OnCorrupt policies for an unparsable ledger document.
const (
	OnCorruptRecreate = "recreate"
	OnCorruptFail     = "fail"
)

type StorageConfig struct {
	Driver         string // file | postgres
	DBFile         string
	DocumentKey    string
	BackupDir      string
	AutoBackup     bool
	BackupInterval time.Duration
	OnCorrupt      string
	TempDir        string
	TempMaxAge     time.Duration
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type LockConfig struct {
	Driver string // local | redis
	Key    string
	TTL    time.Duration
}

// RoleConfig is the static identity list and permission set of one role.
type RoleConfig struct {
	UserIDs     []string
	Permissions []string
}

type RolesConfig struct {
	Owner     RoleConfig
	Admin     RoleConfig
	Moderator RoleConfig
}

type FeatureConfig struct {
	DailyLimit      int
	VIPDailyLimit   int
	MinStrength     float64
	MaxStrength     float64
	DefaultStrength float64
	Timezone        string
}

type ReferralConfig struct {
	Enabled       bool
	ReferrerBonus int
	RefereeBonus  int
	MinUsesExtra  int
	ExtraBonus    int
	LinkFormat    string
}

type ChannelConfig struct {
	RequiredChannels []int64
	AllowedGroups    []int64
}

type ImageConfig struct {
	URL            string
	APIKey         string
	Timeout        time.Duration
	Prompt         string
	NegativePrompt string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		Bot: BotConfig{
			Token:    getEnv("TELEGRAM_BOT_TOKEN", ""),
			Username: getEnv("TELEGRAM_BOT_USERNAME", "ghibli_style_bot"),
			Version:  getEnv("BOT_VERSION", "1.3.0"),
		},
		Storage: StorageConfig{
			Driver:         getEnv("STORAGE_DRIVER", "file"),
			DBFile:         getEnv("DB_FILE", "users_data.json"),
			DocumentKey:    getEnv("DOCUMENT_KEY", "ledger"),
			BackupDir:      getEnv("BACKUP_DIR", "backups"),
			AutoBackup:     getEnvBool("AUTO_BACKUP", true),
			BackupInterval: time.Duration(getEnvInt("BACKUP_INTERVAL_HOURS", 24)) * time.Hour,
			OnCorrupt:      getEnv("ON_CORRUPT", OnCorruptRecreate),
			TempDir:        getEnv("TEMP_DIR", "temp_images"),
			TempMaxAge:     time.Duration(getEnvInt("TEMP_MAX_AGE_HOURS", 24)) * time.Hour,
		},
		Postgres: PostgresConfig{
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "ghibli_bot"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Lock: LockConfig{
			Driver: getEnv("LOCK_DRIVER", "local"),
			Key:    getEnv("LOCK_KEY", "ghibli-bot:ledger-lock"),
			TTL:    time.Duration(getEnvInt("LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		Roles: RolesConfig{
			Owner: RoleConfig{
				UserIDs:     getEnvList("OWNER_IDS", nil),
				Permissions: getEnvList("OWNER_PERMISSIONS", []string{"all"}),
			},
			Admin: RoleConfig{
				UserIDs:     getEnvList("ADMIN_IDS", nil),
				Permissions: getEnvList("ADMIN_PERMISSIONS", []string{"manage_limits", "broadcast", "view_stats"}),
			},
			Moderator: RoleConfig{
				UserIDs:     getEnvList("MODERATOR_IDS", nil),
				Permissions: getEnvList("MODERATOR_PERMISSIONS", []string{"view_stats", "add_limit"}),
			},
		},
		Features: FeatureConfig{
			DailyLimit:      getEnvInt("DAILY_LIMIT", 2),
			VIPDailyLimit:   getEnvInt("VIP_DAILY_LIMIT", 5),
			MinStrength:     getEnvFloat("MIN_STRENGTH", 0.3),
			MaxStrength:     getEnvFloat("MAX_STRENGTH", 0.8),
			DefaultStrength: getEnvFloat("DEFAULT_STRENGTH", 0.6),
			Timezone:        getEnv("TIMEZONE", "Asia/Jakarta"),
		},
		Referral: ReferralConfig{
			Enabled:       getEnvBool("REFERRAL_ENABLED", true),
			ReferrerBonus: getEnvInt("REFERRER_BONUS", 2),
			RefereeBonus:  getEnvInt("REFEREE_BONUS", 1),
			MinUsesExtra:  getEnvInt("MIN_USES_FOR_EXTRA_BONUS", 5),
			ExtraBonus:    getEnvInt("EXTRA_BONUS", 3),
			LinkFormat:    getEnv("REFERRAL_LINK_FORMAT", "https://t.me/%s?start=ref_%s"),
		},
		Channels: ChannelConfig{
			RequiredChannels: getEnvIDs("REQUIRED_CHANNEL_IDS"),
			AllowedGroups:    getEnvIDs("ALLOWED_GROUP_IDS"),
		},
		Image: ImageConfig{
			URL:            getEnv("IMAGE_API_URL", "http://localhost:7860"),
			APIKey:         getEnv("IMAGE_API_KEY", ""),
			Timeout:        time.Duration(getEnvInt("PROCESS_TIMEOUT_SECONDS", 60)) * time.Second,
			Prompt:         getEnv("IMAGE_PROMPT", "Ghibli-style anime painting, soft pastel colors, highly detailed, masterpiece"),
			NegativePrompt: getEnv("IMAGE_NEGATIVE_PROMPT", "lowres, bad anatomy, bad hands, cropped, worst quality"),
		},
	}
}

// Location returns the reference timezone for quota resets, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Features.Timezone)
	if err != nil {
		log.Printf("Unknown timezone %q, using UTC: %v", c.Features.Timezone, err)
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Printf("Invalid integer for %s, using %d", key, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		log.Printf("Invalid float for %s, using %v", key, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		log.Printf("Invalid boolean for %s, using %t", key, fallback)
		return fallback
	}
	return b
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvIDs(key string) []int64 {
	var ids []int64
	for _, raw := range getEnvList(key, nil) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Printf("Skipping invalid id %q in %s", raw, key)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
