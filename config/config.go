package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything read from the environment at startup. The sync
// policy knobs are configurable rather than baked in so deployments can trade
// durability staleness against write volume.
type Config struct {
	Port      string
	JWTSecret string

	DBHost string
	DBUser string
	DBPass string
	DBName string
	DBPort string

	// Room sync policy
	ReconcileInterval time.Duration // how often the reconciler wakes up
	StalenessWindow   time.Duration // persist rooms whose last write is older than this
	RoomCodeLength    int

	// Device sync policy
	MaxDevicesPerUser int
	DeviceSweepAge    time.Duration // devices inactive this long get removed
	DeviceSweepPeriod time.Duration
}

// Load reads configuration from environment variables, applying defaults for
// anything unset.
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		JWTSecret: getEnv("JWT_SECRET", "your-secret-key"),

		DBHost: getEnv("DB_HOST", "localhost"),
		DBUser: getEnv("DB_USER", "postgres"),
		DBPass: getEnv("DB_PASS", "postgres"),
		DBName: getEnv("DB_NAME", "musable"),
		DBPort: getEnv("DB_PORT", "5432"),

		ReconcileInterval: getDuration("SYNC_RECONCILE_INTERVAL", 5*time.Second),
		StalenessWindow:   getDuration("SYNC_STALENESS_WINDOW", 10*time.Second),
		RoomCodeLength:    getInt("ROOM_CODE_LENGTH", 6),

		MaxDevicesPerUser: getInt("MAX_DEVICES_PER_USER", 10),
		DeviceSweepAge:    getDuration("DEVICE_SWEEP_AGE", 7*24*time.Hour),
		DeviceSweepPeriod: getDuration("DEVICE_SWEEP_PERIOD", time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
