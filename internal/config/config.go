package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           int
	Password       string
	LogDirectory   string
	LogLevel       string
	SessionFile    string
	RecordingDir   string
	DatabasePath   string
	TargetFPS      float64       // Docelowa liczba paczek na sekundę
	ThrottleStep   time.Duration // Krok regulatora opóźnienia między strzałami migawki
	ThrottleWindow int           // Liczba ostatnich paczek do liczenia FPS
	ThrottleSlack  int           // Powyżej tego zapasu klatek regulator nie działa
	StallTimeout   time.Duration // 0 = czekaj w nieskończoność na zablokowaną kamerę
	ShutterLead    int           // Ile klatek kamera może wyprzedzić strzały migawki

	RecordEveryNth      int // Co którą paczkę zapisywać (1=każdą)
	RecordBufferLimit   int
	RecordFlushInterval int // Sekundy między zapisami bufora na dysk
	RecordWorkers       int // Liczba workerów zapisujących paczki
	MotionThreshold     int // 0 = zapisuj bez detekcji ruchu

	DetectFeatures bool
	MaxFeatures    int
}

// Load reads an optional .env file (ENV_FILE, default ".env") and then the environment.
func Load() *Config {
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))

	return &Config{
		Port:           getEnvAsInt("PORT", 8080),
		Password:       getEnv("PASSWORD", "camsync"),
		LogDirectory:   getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SessionFile:    getEnv("SESSION_FILE", filepath.Join(".", "session.json")),
		RecordingDir:   getEnv("RECORDING_DIR", filepath.Join(".", "recordings")),
		DatabasePath:   getEnv("DATABASE_PATH", filepath.Join(".", "data", "bundles.db")),
		TargetFPS:      getEnvAsFloat("TARGET_FPS", 30),
		ThrottleStep:   getEnvAsMillis("THROTTLE_STEP_MS", 0.1),
		ThrottleWindow: getEnvAsInt("THROTTLE_WINDOW", 10),
		ThrottleSlack:  getEnvAsInt("THROTTLE_SLACK", 3),
		StallTimeout:   getEnvAsMillis("STALL_TIMEOUT_MS", 0),
		ShutterLead:    getEnvAsInt("SHUTTER_LEAD", 4),

		RecordEveryNth:      getEnvAsInt("RECORD_EVERY_NTH", 1),
		RecordBufferLimit:   getEnvAsInt("RECORD_BUFFER_LIMIT", 300),
		RecordFlushInterval: getEnvAsInt("RECORD_FLUSH_INTERVAL", 5),
		RecordWorkers:       getEnvAsInt("RECORD_WORKERS", 2),
		MotionThreshold:     getEnvAsInt("MOTION_THRESHOLD", 0),

		DetectFeatures: getEnvAsBool("DETECT_FEATURES", false),
		MaxFeatures:    getEnvAsInt("MAX_FEATURES", 50),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsMillis reads a (possibly fractional) number of milliseconds.
func getEnvAsMillis(key string, defaultValue float64) time.Duration {
	ms := getEnvAsFloat(key, defaultValue)
	if ms < 0 {
		ms = defaultValue
	}
	return time.Duration(ms * float64(time.Millisecond))
}
