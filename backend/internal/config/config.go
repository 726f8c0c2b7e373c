// Package config reads the relay's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"plant-monitor/backend/internal/history"
	"plant-monitor/backend/internal/poller"
	"plant-monitor/backend/internal/weather"
)

type EnvKey string

const (
	EnvGenerate EnvKey = "GENERATE"

	EnvPort      EnvKey = "PORT"
	EnvDataDir   EnvKey = "DATA_DIR"
	EnvLogLevel  EnvKey = "LOG_LEVEL"
	EnvLogToFile EnvKey = "LOG_TO_FILE"

	EnvMQTTEmbeddedBroker EnvKey = "MQTT_EMBEDDED_BROKER"
	EnvMQTTBrokerPort     EnvKey = "MQTT_SERVER_PORT"

	EnvMQTTBroker   EnvKey = "MQTT_BROKER"
	EnvMQTTClientID EnvKey = "MQTT_CLIENT_ID"
	EnvMQTTUsername EnvKey = "MQTT_USERNAME"
	EnvMQTTPassword EnvKey = "MQTT_PASSWORD"

	// Adafruit IO names, used when the MQTT_* ones are unset.
	EnvAIOUser EnvKey = "AIO_USER"
	EnvAIOKey  EnvKey = "AIO_KEY"

	EnvFeedUser  EnvKey = "FEED_USER"
	EnvFeedSoil  EnvKey = "FEED_SOIL"
	EnvFeedLight EnvKey = "FEED_LIGHT"

	EnvWeatherAPIKey  EnvKey = "OPENWEATHERMAP_KEY"
	EnvWeatherBaseURL EnvKey = "WEATHER_BASE_URL"
	EnvPollInterval   EnvKey = "POLL_INTERVAL"
	EnvLookupTimeout  EnvKey = "LOOKUP_TIMEOUT"

	EnvHistoryCapacity EnvKey = "HISTORY_CAPACITY"
)

const (
	DefaultMQTTBroker = "tcp://io.adafruit.com:1883"
	// Feed owner used with the embedded broker when none is configured.
	LocalFeedUser = "local"

	logFileName     = "app.log"
	logMaxSizeMB    = 10
	logMaxBackups   = 3
	logMaxAgeDays   = 28
	dataDirPerm     = 0o750
	maxPortNumber   = 65535
	defaultPort     = 3000
	defaultMQTTPort = 1883
)

type Config struct {
	Port      int
	Generate  bool
	DataDir   string
	LogLevel  slog.Leveler
	LogOutput io.Writer

	// Embedded MQTT broker
	MQTTEmbeddedBroker bool
	MQTTBrokerPort     int

	// Upstream MQTT connection
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	// Upstream feeds, <FeedUser>/feeds/<feed>
	FeedUser  string
	FeedSoil  string
	FeedLight string

	// Ambient temperature lookup
	WeatherAPIKey  string
	WeatherBaseURL string
	PollInterval   time.Duration
	LookupTimeout  time.Duration

	HistoryCapacity int
}

func New() (*Config, error) {
	c := &Config{
		Port:     getIntEnv(EnvPort, defaultPort),
		Generate: getBoolEnv(EnvGenerate, false),
		DataDir:  getStringEnv(EnvDataDir, "data"),
		LogLevel: getLogLevelEnv(EnvLogLevel, slog.LevelInfo),

		MQTTEmbeddedBroker: getBoolEnv(EnvMQTTEmbeddedBroker, false),
		MQTTBrokerPort:     getIntEnv(EnvMQTTBrokerPort, defaultMQTTPort),

		MQTTClientID: getStringEnv(EnvMQTTClientID, "plant-monitor-relay"),
		MQTTUsername: getStringEnv(EnvMQTTUsername, getStringEnv(EnvAIOUser, "")),
		MQTTPassword: getStringEnv(EnvMQTTPassword, getStringEnv(EnvAIOKey, "")),

		FeedSoil:  getStringEnv(EnvFeedSoil, string(history.ChannelSoil)),
		FeedLight: getStringEnv(EnvFeedLight, string(history.ChannelLight)),

		WeatherAPIKey:  getStringEnv(EnvWeatherAPIKey, ""),
		WeatherBaseURL: getStringEnv(EnvWeatherBaseURL, weather.DefaultBaseURL),
		PollInterval:   getDurationEnv(EnvPollInterval, poller.DefaultInterval),
		LookupTimeout:  getDurationEnv(EnvLookupTimeout, poller.DefaultLookupTimeout),

		HistoryCapacity: getIntEnv(EnvHistoryCapacity, history.DefaultCapacity),
	}

	defaultBroker := DefaultMQTTBroker
	if c.MQTTEmbeddedBroker {
		defaultBroker = "tcp://127.0.0.1:" + strconv.Itoa(c.MQTTBrokerPort)
	}

	c.MQTTBroker = getStringEnv(EnvMQTTBroker, defaultBroker)

	c.FeedUser = getStringEnv(EnvFeedUser, c.MQTTUsername)
	if c.FeedUser == "" && c.MQTTEmbeddedBroker {
		c.FeedUser = LocalFeedUser
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	c.LogOutput = os.Stdout

	if getBoolEnv(EnvLogToFile, false) {
		if err := os.MkdirAll(c.DataDir, dataDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		c.LogOutput = &lumberjack.Logger{
			Filename:   filepath.Join(c.DataDir, logFileName),
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		}
	}

	return c, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > maxPortNumber {
		errs = append(errs, fmt.Errorf("%s must be between 1 and %d, got %d", EnvPort, maxPortNumber, c.Port))
	}

	if c.MQTTEmbeddedBroker && (c.MQTTBrokerPort < 1 || c.MQTTBrokerPort > maxPortNumber) {
		errs = append(errs, fmt.Errorf("%s must be between 1 and %d, got %d", EnvMQTTBrokerPort, maxPortNumber, c.MQTTBrokerPort))
	}

	if c.MQTTBroker == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvMQTTBroker))
	}

	if c.FeedUser == "" {
		errs = append(errs, fmt.Errorf("%s (or %s) is required", EnvFeedUser, EnvMQTTUsername))
	}

	if c.FeedSoil == "" || c.FeedLight == "" {
		errs = append(errs, fmt.Errorf("%s and %s must not be empty", EnvFeedSoil, EnvFeedLight))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvPollInterval))
	}

	if c.LookupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvLookupTimeout))
	}

	if c.HistoryCapacity <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvHistoryCapacity))
	}

	return errors.Join(errs...)
}

// Feeds maps each channel to its upstream feed name.
func (c *Config) Feeds() map[history.Channel]string {
	return map[history.Channel]string{
		history.ChannelSoil:  c.FeedSoil,
		history.ChannelLight: c.FeedLight,
	}
}

func (c *Config) Close() error {
	if f, ok := c.LogOutput.(*os.File); ok && (f == os.Stdout || f == os.Stderr) {
		return nil
	}

	if closer, ok := c.LogOutput.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

func getStringEnv(key EnvKey, defaultVal string) string {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	return val
}

func getBoolEnv(key EnvKey, defaultVal bool) bool {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	switch strings.ToLower(val) {
	case "true", "1":
		return true
	default:
		return false
	}
}

func getIntEnv(key EnvKey, defaultVal int) int {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	if intVal, err := strconv.Atoi(val); err == nil {
		return intVal
	}

	return defaultVal
}

func getDurationEnv(key EnvKey, defaultVal time.Duration) time.Duration {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	if d, err := time.ParseDuration(val); err == nil {
		return d
	}

	return defaultVal
}

func getLogLevelEnv(key EnvKey, defaultVal slog.Leveler) slog.Leveler {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	switch strings.ToUpper(val) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}

	return defaultVal
}
