package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the JSON config file looked up in the config directory.
const ConfigFileName = "insightxr.cfg.json"

// SessionConfig identifies who recordings belong to and how they are sampled
type SessionConfig struct {
	UserID     string `json:"userId" mapstructure:"userId"`
	CustomerID string `json:"customerId" mapstructure:"customerId"`
	APIKey     string `json:"apiKey" mapstructure:"apiKey"`
	// SampleInterval rate-limits motion samples per object; 0 keeps every tick.
	SampleInterval time.Duration `json:"sampleInterval" mapstructure:"sampleInterval"`
	// DevMode suppresses process termination after upload.
	DevMode bool `json:"devMode" mapstructure:"devMode"`
}

// UploadConfig holds remote object storage settings
type UploadConfig struct {
	Endpoint      string        `json:"endpoint" mapstructure:"endpoint"`
	Prefix        string        `json:"prefix" mapstructure:"prefix"`
	Timeout       time.Duration `json:"timeout" mapstructure:"timeout"`
	Compress      bool          `json:"compress" mapstructure:"compress"`
	SpoolDir      string        `json:"spoolDir" mapstructure:"spoolDir"`
	FlushSchedule string        `json:"flushSchedule" mapstructure:"flushSchedule"`
}

// MemoryConfig holds in-memory/JSON archive backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite archive backend settings
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// DBConfig holds Postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// WebSocketConfig holds live streaming backend settings
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the session archive backend
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	DB        DBConfig        `json:"db" mapstructure:"db"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds session metrics settings
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./insightxr-logs")

	viper.SetDefault("session.userId", "anonymous")
	viper.SetDefault("session.customerId", "default")
	viper.SetDefault("session.apiKey", "")
	viper.SetDefault("session.sampleInterval", "0s")
	viper.SetDefault("session.devMode", false)

	viper.SetDefault("upload.endpoint", "http://localhost:9000/insightxr")
	viper.SetDefault("upload.prefix", "")
	viper.SetDefault("upload.timeout", "30s")
	viper.SetDefault("upload.compress", false)
	viper.SetDefault("upload.spoolDir", "./insightxr-spool")
	viper.SetDefault("upload.flushSchedule", "")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./recordings/insightxr.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "insightxr")

	viper.SetDefault("websocket.url", "ws://localhost:5000/api/stream")
	viper.SetDefault("websocket.secret", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "insightxr")
	viper.SetDefault("influx.bucket", "sessions")
	viper.SetDefault("influx.backupPath", "./insightxr-logs/influx_backup.lp.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "insightxr-recorder")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from the JSON file in configDir and sets default values.
// Defaults remain in effect when the file cannot be read.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetSessionConfig returns the session identity settings.
func GetSessionConfig() SessionConfig {
	return SessionConfig{
		UserID:         viper.GetString("session.userId"),
		CustomerID:     viper.GetString("session.customerId"),
		APIKey:         viper.GetString("session.apiKey"),
		SampleInterval: viper.GetDuration("session.sampleInterval"),
		DevMode:        viper.GetBool("session.devMode"),
	}
}

// GetUploadConfig returns the uploader settings.
func GetUploadConfig() UploadConfig {
	return UploadConfig{
		Endpoint:      viper.GetString("upload.endpoint"),
		Prefix:        viper.GetString("upload.prefix"),
		Timeout:       viper.GetDuration("upload.timeout"),
		Compress:      viper.GetBool("upload.compress"),
		SpoolDir:      viper.GetString("upload.spoolDir"),
		FlushSchedule: viper.GetString("upload.flushSchedule"),
	}
}

// GetStorageConfig returns the archive backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("websocket.url"),
			Secret: viper.GetString("websocket.secret"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the session metrics settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Protocol:   viper.GetString("influx.protocol"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetGraylogConfig returns the GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
