package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/anthanhphan/gosdk/conflux"
	"github.com/anthanhphan/gosdk/logger"
)

// Config holds the gridstore service configuration.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	App     AppConfig     `json:"app" yaml:"app"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Backend BackendConfig `json:"backend" yaml:"backend"`
	Redis   RedisConfig   `json:"redis" yaml:"redis"`
	Logger  logger.Config `json:"logger" yaml:"logger"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type AppConfig struct {
	NodeID      int64 `json:"node_id" yaml:"node_id"`
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`
}

// StoreConfig is passed explicitly at store construction so multiple
// independently namespaced stores can coexist against one backend.
type StoreConfig struct {
	Prefix           string `json:"prefix" yaml:"prefix"`
	ChunkSize        int64  `json:"chunk_size" yaml:"chunk_size"`
	WriteConcern     string `json:"write_concern" yaml:"write_concern"` // "acknowledged", "unacknowledged", "" inherits backend mode
	ReconcileWorkers int    `json:"reconcile_workers" yaml:"reconcile_workers"`
	ReconcileEveryMS int    `json:"reconcile_every_ms" yaml:"reconcile_every_ms"` // 0 disables the sweep
	ReconcileGraceMS int    `json:"reconcile_grace_ms" yaml:"reconcile_grace_ms"`
}

type BackendConfig struct {
	Kind string `json:"kind" yaml:"kind"` // "memory" or "redis"
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8090",
		},
		App: AppConfig{
			NodeID:      1,
			MaxFileSize: 2 * 1024 * 1024 * 1024, // 2GB
		},
		Store: StoreConfig{
			Prefix:           "fs",
			ChunkSize:        255 * 1024,
			WriteConcern:     "acknowledged",
			ReconcileWorkers: 4,
			ReconcileEveryMS: 0,
			ReconcileGraceMS: 60000,
		},
		Backend: BackendConfig{
			Kind: "memory",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Logger: logger.Config{
			LogLevel:    logger.LevelInfo,
			LogEncoding: logger.EncodingJSON,
		},
	}
}

// Load loads configuration from file, falling back to defaults when no
// explicit path was given.
func Load(path string) (*Config, error) {
	configPath := path
	if configPath == "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = "local"
		}
		configPath = filepath.Join("internal", "config", env+".yaml")
	}

	cfg := DefaultConfig()

	parsedCfg, err := conflux.ParseConfig(configPath, cfg)
	if err != nil {
		log.Printf("Config file not found or failed to parse, using defaults if file not specified. Path: %s, Error: %v", configPath, err)
		if path != "" {
			return nil, err
		}
		return cfg, nil
	}

	return parsedCfg, nil
}

// MustLoad loads configuration or exits on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}
