package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-driven setting recognized across
// reconserver and reconctl-migrate (spec.md §6). Fields are grouped by the
// component that consumes them.
type Config struct {
	// Dispatcher (C4)
	TaskExecutorImage    string
	ImageTag             string
	TaskSubmitInterval   time.Duration
	HighLoadWaitSeconds  time.Duration
	DockerNetworkName    string
	ServerPort           int
	PublicHost           string
	HostResultsDir       string
	HostLogsDir          string
	ContainerResultsMount string
	ContainerLogsMount   string

	// Executor (C1)
	ScanCPUHigh             float64
	ScanMemHigh             float64
	ScanLoadCheckInterval   time.Duration
	ScanCommandStartupDelay time.Duration
	EnableCommandLogging    bool

	// Database / cache
	DBHost         string
	DBPort         int
	DBName         string
	DBUser         string
	DBPassword     string
	RedisURL       string
	WorkerRedisURL string

	// Logging / misc
	LogLevel string
	Debug    bool
}

// Load builds a Config from the process environment, applying the
// defaults named in spec.md §6, then validates required fields.
func Load() (*Config, error) {
	cfg := &Config{
		TaskExecutorImage:    os.Getenv("TASK_EXECUTOR_IMAGE"),
		ImageTag:             os.Getenv("IMAGE_TAG"),
		TaskSubmitInterval:   getEnvSeconds("TASK_SUBMIT_INTERVAL", 5),
		HighLoadWaitSeconds:  getEnvSeconds("HIGH_LOAD_WAIT_SECONDS", 60),
		DockerNetworkName:    getEnvString("DOCKER_NETWORK_NAME", "reconctl"),
		ServerPort:           getEnvInt("SERVER_PORT", 8080),
		PublicHost:           getEnvString("PUBLIC_HOST", ""),
		HostResultsDir:       getEnvString("HOST_RESULTS_DIR", "/opt/xingrin/results"),
		HostLogsDir:          getEnvString("HOST_LOGS_DIR", "/opt/xingrin/logs"),
		ContainerResultsMount: getEnvString("CONTAINER_RESULTS_MOUNT", "/results"),
		ContainerLogsMount:   getEnvString("CONTAINER_LOGS_MOUNT", "/logs"),

		ScanCPUHigh:             getEnvFloat("SCAN_CPU_HIGH", 90),
		ScanMemHigh:             getEnvFloat("SCAN_MEM_HIGH", 80),
		ScanLoadCheckInterval:   getEnvSeconds("SCAN_LOAD_CHECK_INTERVAL", 30),
		ScanCommandStartupDelay: getEnvSeconds("SCAN_COMMAND_STARTUP_DELAY", 5),
		EnableCommandLogging:    getEnvBool("ENABLE_COMMAND_LOGGING", true),

		DBHost:         getEnvString("DB_HOST", "127.0.0.1"),
		DBPort:         getEnvInt("DB_PORT", 5432),
		DBName:         getEnvString("DB_NAME", "reconctl"),
		DBUser:         getEnvString("DB_USER", "reconctl"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		RedisURL:       getEnvString("REDIS_URL", "redis://127.0.0.1:6379/0"),
		WorkerRedisURL: getEnvString("WORKER_REDIS_URL", "redis://redis:6379/0"),

		LogLevel: getEnvString("LOG_LEVEL", "info"),
		Debug:    getEnvBool("DEBUG", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TaskExecutorImage == "" {
		return fmt.Errorf("config: TASK_EXECUTOR_IMAGE is required")
	}
	if c.ImageTag == "" {
		return fmt.Errorf("config: IMAGE_TAG is required")
	}
	return nil
}

func getEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvSeconds(key string, defSeconds int) time.Duration {
	n := getEnvInt(key, defSeconds)
	return time.Duration(n) * time.Second
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
