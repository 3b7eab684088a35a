package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	kiloByte = 1024
	megaByte = 1024 * kiloByte
)

// largest max_request_size_mb accepted, keeps MaxRequestBytes within int32
const maxRequestSizeMB = 1024

// prefix for environment overrides, e.g. SEMA_SERVER_PORT
const envPrefix = "SEMA_"

type Config struct {
	Server  serverConfig  `yaml:"server"`
	Catalog catalogConfig `yaml:"catalog"`
	Checker checkerConfig `yaml:"checker"`
	Log     logConfig     `yaml:"log"`
}
type serverConfig struct {
	Port             int    `yaml:"port"`
	Host             string `yaml:"host"`
	MaxRequestSizeMB int    `yaml:"max_request_size_mb"` // largest expression document accepted over grpc
}
type catalogConfig struct {
	// local files or s3://bucket/key objects, loaded in order at start-up
	Paths       []string          `yaml:"paths"`
	ObjectStore objectStoreConfig `yaml:"object_store"`
}
type objectStoreConfig struct {
	Provider          string `yaml:"provider"` // aws | minio
	Endpoint          string `yaml:"endpoint"`
	Region            string `yaml:"region"`
	AccessKey         string `yaml:"access_key"`
	SecretKey         string `yaml:"secret_key"`
	UseSSL            bool   `yaml:"use_ssl"`
	MaxDownloadSizeMB int    `yaml:"max_download_size_mb"`
}
type checkerConfig struct {
	// stop checking siblings once any node has been rejected
	FailFast bool `yaml:"fail_fast"`
	// propagate aggregate detection and attribute collection through every
	// compound node instead of arithmetic only
	UniformTraversal bool `yaml:"uniform_traversal"`
	MaxDepth         int  `yaml:"max_depth"` // 0 = unbounded
}
type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

func defaultConfig() *Config {
	return &Config{
		Server: serverConfig{
			Port:             8000,
			Host:             "localhost",
			MaxRequestSizeMB: 4,
		},
		Catalog: catalogConfig{
			Paths: nil,
			ObjectStore: objectStoreConfig{
				Provider:          "aws",
				Region:            "us-east-1",
				UseSSL:            true,
				MaxDownloadSizeMB: 10, // catalogs are schemas, never data
			},
		},
		Checker: checkerConfig{
			FailFast:         false,
			UniformTraversal: false,
			MaxDepth:         256,
		},
		Log: logConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

var configInstance *Config = defaultConfig()

func GetConfig() *Config {
	return configInstance
}

// Reset restores compiled defaults.
func Reset() {
	configInstance = defaultConfig()
}

// overwrite global instance with loaded config
func Decode(filePath string) error {
	suffix := strings.Split(filePath, ".")[len(strings.Split(filePath, "."))-1]
	if suffix != "yaml" && suffix != "yml" {
		return errors.New("file must be a .yaml or .yml file")
	}
	r, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer r.Close()
	config := make(map[string]interface{})
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(config); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	mergeConfig(configInstance, config)
	return nil
}

// LoadEnv reads an optional .env file (missing files are ignored when path is
// empty) and then applies SEMA_* variables from the process environment.
// Variables already set in the environment win over the file.
func LoadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	} else {
		_ = godotenv.Load()
	}
	return applyEnv(configInstance, os.LookupEnv)
}

func applyEnv(dst *Config, lookup func(string) (string, bool)) error {
	str := func(key string, target *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*target = v
		}
	}
	num := func(key string, target *int) error {
		v, ok := lookup(envPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*target = n
		return nil
	}
	flag := func(key string, target *bool) error {
		v, ok := lookup(envPrefix + key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*target = b
		return nil
	}

	str("SERVER_HOST", &dst.Server.Host)
	if err := num("SERVER_PORT", &dst.Server.Port); err != nil {
		return err
	}
	if v, ok := lookup(envPrefix + "CATALOG_PATHS"); ok {
		dst.Catalog.Paths = splitList(v)
	}
	str("OBJECT_STORE_PROVIDER", &dst.Catalog.ObjectStore.Provider)
	str("OBJECT_STORE_ENDPOINT", &dst.Catalog.ObjectStore.Endpoint)
	str("OBJECT_STORE_REGION", &dst.Catalog.ObjectStore.Region)
	str("OBJECT_STORE_ACCESS_KEY", &dst.Catalog.ObjectStore.AccessKey)
	str("OBJECT_STORE_SECRET_KEY", &dst.Catalog.ObjectStore.SecretKey)
	if err := flag("OBJECT_STORE_USE_SSL", &dst.Catalog.ObjectStore.UseSSL); err != nil {
		return err
	}
	if err := flag("CHECKER_FAIL_FAST", &dst.Checker.FailFast); err != nil {
		return err
	}
	if err := flag("CHECKER_UNIFORM_TRAVERSAL", &dst.Checker.UniformTraversal); err != nil {
		return err
	}
	if err := num("CHECKER_MAX_DEPTH", &dst.Checker.MaxDepth); err != nil {
		return err
	}
	str("LOG_LEVEL", &dst.Log.Level)
	str("LOG_FORMAT", &dst.Log.Format)
	str("LOG_OUTPUT", &dst.Log.Output)
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that configuration values are sensible
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.MaxRequestSizeMB <= 0 || c.Server.MaxRequestSizeMB > maxRequestSizeMB {
		return fmt.Errorf("max_request_size_mb must be between 1 and %d, got %d", maxRequestSizeMB, c.Server.MaxRequestSizeMB)
	}
	switch c.Catalog.ObjectStore.Provider {
	case "aws", "minio":
	default:
		return fmt.Errorf("unknown object store provider %q", c.Catalog.ObjectStore.Provider)
	}
	if c.Checker.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative, got %d", c.Checker.MaxDepth)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Log.Level)
	}
	return nil
}

// MaxRequestBytes converts the configured request size to bytes.
func (c *Config) MaxRequestBytes() int {
	return c.Server.MaxRequestSizeMB * megaByte
}

// MaxDownloadBytes converts the configured download cap to bytes.
func (c *Config) MaxDownloadBytes() int64 {
	return int64(c.Catalog.ObjectStore.MaxDownloadSizeMB) * int64(megaByte)
}

func mergeConfig(dst *Config, src map[string]interface{}) {
	// =============================
	// SERVER
	// =============================
	if server, ok := src["server"].(map[string]interface{}); ok {
		if v, ok := server["port"].(int); ok {
			dst.Server.Port = v
		}
		if v, ok := server["host"].(string); ok {
			dst.Server.Host = v
		}
		if v, ok := server["max_request_size_mb"].(int); ok {
			dst.Server.MaxRequestSizeMB = v
		}
	}

	// =============================
	// CATALOG
	// =============================
	if cat, ok := src["catalog"].(map[string]interface{}); ok {
		if v, ok := cat["paths"].([]interface{}); ok {
			paths := make([]string, 0, len(v))
			for _, p := range v {
				if s, ok := p.(string); ok {
					paths = append(paths, s)
				}
			}
			dst.Catalog.Paths = paths
		}
		if store, ok := cat["object_store"].(map[string]interface{}); ok {
			if v, ok := store["provider"].(string); ok {
				dst.Catalog.ObjectStore.Provider = v
			}
			if v, ok := store["endpoint"].(string); ok {
				dst.Catalog.ObjectStore.Endpoint = v
			}
			if v, ok := store["region"].(string); ok {
				dst.Catalog.ObjectStore.Region = v
			}
			if v, ok := store["access_key"].(string); ok {
				dst.Catalog.ObjectStore.AccessKey = v
			}
			if v, ok := store["secret_key"].(string); ok {
				dst.Catalog.ObjectStore.SecretKey = v
			}
			if v, ok := store["use_ssl"].(bool); ok {
				dst.Catalog.ObjectStore.UseSSL = v
			}
			if v, ok := store["max_download_size_mb"].(int); ok {
				dst.Catalog.ObjectStore.MaxDownloadSizeMB = v
			}
		}
	}

	// =============================
	// CHECKER
	// =============================
	if checker, ok := src["checker"].(map[string]interface{}); ok {
		if v, ok := checker["fail_fast"].(bool); ok {
			dst.Checker.FailFast = v
		}
		if v, ok := checker["uniform_traversal"].(bool); ok {
			dst.Checker.UniformTraversal = v
		}
		if v, ok := checker["max_depth"].(int); ok {
			dst.Checker.MaxDepth = v
		}
	}

	// =============================
	// LOG
	// =============================
	if log, ok := src["log"].(map[string]interface{}); ok {
		if v, ok := log["level"].(string); ok {
			dst.Log.Level = v
		}
		if v, ok := log["format"].(string); ok {
			dst.Log.Format = v
		}
		if v, ok := log["output"].(string); ok {
			dst.Log.Output = v
		}
	}
}
