package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all data sync configuration
type Config struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	// AWS configuration
	AWSRegion          string `yaml:"aws_region"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
	RunningInContainer bool   `yaml:"running_in_container"`

	// Record store
	DynamoDBEndpoint string `yaml:"dynamodb_endpoint"`
	DynamoDBTable    string `yaml:"dynamodb_table"`
	RunLockEnabled   bool   `yaml:"run_lock_enabled"`

	// Search index
	OpenSearchEndpoint   string        `yaml:"opensearch_endpoint"`
	OpenSearchIndex      string        `yaml:"opensearch_index"`
	SearchRequestTimeout time.Duration `yaml:"search_request_timeout"`
	SearchRateLimit      float64       `yaml:"search_rate_limit"`
	SearchRateBurst      int           `yaml:"search_rate_burst"`
	MaxIndexDocuments    int           `yaml:"max_index_documents"`

	// Snapshots
	S3Endpoint   string `yaml:"s3_endpoint"`
	BackupBucket string `yaml:"backup_bucket"`
	ExportDir    string `yaml:"export_dir"`
	SyncPointDir string `yaml:"sync_point_dir"`

	// Run reporting
	EventBusName     string `yaml:"event_bus_name"`
	EnableEvents     bool   `yaml:"enable_events"`
	EnableMetrics    bool   `yaml:"enable_metrics"`
	MetricsNamespace string `yaml:"metrics_namespace"`
	EnableTracing    bool   `yaml:"enable_tracing"`

	// Admin API
	ServerAddress string `yaml:"server_address"`
	JWTSecret     string `yaml:"jwt_secret"`
	JWTIssuer     string `yaml:"jwt_issuer"`
	EnableCORS    bool   `yaml:"enable_cors"`
	APIRateLimit  int    `yaml:"api_rate_limit"`
}

// LoadConfig loads configuration from defaults, the YAML file named by
// DATASYNC_CONFIG (if any) and environment variables, in that order.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(os.Getenv("DATASYNC_CONFIG"))
}

// LoadConfigFile is LoadConfig with an explicit YAML overlay path. An empty
// path skips the overlay.
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig(getEnvBool("RUNNING_IN_CONTAINER", false))

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig(inContainer bool) *Config {
	host := "localhost"
	if inContainer {
		host = "localstack"
	}
	localstack := fmt.Sprintf("http://%s:4566", host)

	return &Config{
		Environment:          "development",
		LogLevel:             "info",
		AWSRegion:            "us-east-1",
		AWSAccessKeyID:       "test",
		AWSSecretAccessKey:   "test",
		RunningInContainer:   inContainer,
		DynamoDBEndpoint:     localstack,
		DynamoDBTable:        "tattoo-directory-local",
		OpenSearchEndpoint:   localstack,
		OpenSearchIndex:      "artists-local",
		SearchRequestTimeout: 10 * time.Second,
		SearchRateBurst:      10,
		MaxIndexDocuments:    10000,
		S3Endpoint:           localstack,
		BackupBucket:         "tattoo-directory-backups",
		ExportDir:            "./exports",
		SyncPointDir:         "./sync-points",
		MetricsNamespace:     "TattooDirectory/DataSync",
		ServerAddress:        ":8081",
		JWTIssuer:            "tattoo-directory",
		EnableCORS:           true,
		APIRateLimit:         120,
	}
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.AWSAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", c.AWSAccessKeyID)
	c.AWSSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", c.AWSSecretAccessKey)

	c.DynamoDBEndpoint = getEnv("DYNAMODB_ENDPOINT", c.DynamoDBEndpoint)
	c.DynamoDBTable = getEnv("DYNAMODB_TABLE", c.DynamoDBTable)
	c.RunLockEnabled = getEnvBool("RUN_LOCK_ENABLED", c.RunLockEnabled)

	c.OpenSearchEndpoint = strings.TrimRight(getEnv("OPENSEARCH_ENDPOINT", c.OpenSearchEndpoint), "/")
	c.OpenSearchIndex = getEnv("OPENSEARCH_INDEX", c.OpenSearchIndex)
	c.SearchRequestTimeout = getEnvDuration("SEARCH_REQUEST_TIMEOUT", c.SearchRequestTimeout)
	c.SearchRateLimit = getEnvFloat("SEARCH_RATE_LIMIT", c.SearchRateLimit)
	c.SearchRateBurst = getEnvInt("SEARCH_RATE_BURST", c.SearchRateBurst)
	c.MaxIndexDocuments = getEnvInt("MAX_INDEX_DOCUMENTS", c.MaxIndexDocuments)

	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.BackupBucket = getEnv("BACKUP_BUCKET", c.BackupBucket)
	c.ExportDir = getEnv("EXPORT_DIR", c.ExportDir)
	c.SyncPointDir = getEnv("SYNC_POINT_DIR", c.SyncPointDir)

	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)
	c.EnableEvents = getEnvBool("ENABLE_EVENTS", c.EnableEvents)
	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.MetricsNamespace = getEnv("METRICS_NAMESPACE", c.MetricsNamespace)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)

	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTIssuer = getEnv("JWT_ISSUER", c.JWTIssuer)
	c.EnableCORS = getEnvBool("ENABLE_CORS", c.EnableCORS)
	c.APIRateLimit = getEnvInt("API_RATE_LIMIT", c.APIRateLimit)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.DynamoDBTable == "" {
		return fmt.Errorf("DYNAMODB_TABLE is required")
	}
	if c.OpenSearchEndpoint == "" || c.OpenSearchIndex == "" {
		return fmt.Errorf("OPENSEARCH_ENDPOINT and OPENSEARCH_INDEX are required")
	}
	if c.MaxIndexDocuments <= 0 {
		return fmt.Errorf("MAX_INDEX_DOCUMENTS must be positive, got %d", c.MaxIndexDocuments)
	}
	if c.SearchRequestTimeout <= 0 {
		return fmt.Errorf("SEARCH_REQUEST_TIMEOUT must be positive, got %s", c.SearchRequestTimeout)
	}
	if c.EnableEvents && c.EventBusName == "" {
		return fmt.Errorf("EVENT_BUS_NAME is required when ENABLE_EVENTS is set")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesLocalEndpoints reports whether AWS clients should target LocalStack
// style endpoints with static credentials.
func (c *Config) UsesLocalEndpoints() bool {
	return !c.IsProduction()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("15s") or plain milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
