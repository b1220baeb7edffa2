// Package config loads the sync service settings from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/BartekS5/requestsync/internal/cursor"
	"github.com/BartekS5/requestsync/internal/etl"
	"github.com/BartekS5/requestsync/pkg/database"
)

const (
	BackendBigQuery  = "bigquery"
	BackendSQLServer = "sqlserver"
)

type Config struct {
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Sink     SinkConfig     `mapstructure:"sink"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
	SQL      SQLConfig      `mapstructure:"sql"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type MongoConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	DBName           string `mapstructure:"db_name"`
	CollectionName   string `mapstructure:"collection_name"`
}

type SyncConfig struct {
	TimestampField      string `mapstructure:"timestamp_field"`
	IDField             string `mapstructure:"id_field"`
	TargetTable         string `mapstructure:"target_table"`
	BatchSize           int    `mapstructure:"batch_size"`
	LagMinutes          int    `mapstructure:"lag_minutes"`
	IntervalMinutes     int    `mapstructure:"interval_minutes"`
	ErrorBackoffSeconds int    `mapstructure:"error_backoff_seconds"`
	// InitialTimestamp seeds the cursor when no cursor file exists yet.
	InitialTimestamp string `mapstructure:"initial_timestamp"`
	StateDir         string `mapstructure:"state_dir"`
	RejectFile       string `mapstructure:"reject_file"`
	SchemaFile       string `mapstructure:"schema_file"`
}

type SinkConfig struct {
	Backend string `mapstructure:"backend"`
}

type BigQueryConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	Dataset         string `mapstructure:"dataset"`
	CredentialsFile string `mapstructure:"credentials_file"`
	// Inline service account, also read from PRIVATE_KEY, CLIENT_EMAIL and CLIENT_ID.
	PrivateKey  string `mapstructure:"private_key"`
	ClientEmail string `mapstructure:"client_email"`
	ClientID    string `mapstructure:"client_id"`
}

type SQLConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
}

type MetricsConfig struct {
	// Addr is the listen address of the metrics endpoint; empty disables it.
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default, even an empty one, so that environment
	// variables are picked up by Unmarshal.
	v.SetDefault("mongo.connection_string", "")
	v.SetDefault("mongo.db_name", "")
	v.SetDefault("mongo.collection_name", "")

	v.SetDefault("sync.timestamp_field", "requestDate")
	v.SetDefault("sync.id_field", "_id")
	v.SetDefault("sync.target_table", "")
	v.SetDefault("sync.batch_size", 1000)
	v.SetDefault("sync.lag_minutes", 2880)
	v.SetDefault("sync.interval_minutes", 5)
	v.SetDefault("sync.error_backoff_seconds", 10)
	v.SetDefault("sync.initial_timestamp", "")
	v.SetDefault("sync.state_dir", ".")
	v.SetDefault("sync.reject_file", "error-row.txt")
	v.SetDefault("sync.schema_file", "")

	v.SetDefault("sink.backend", BackendBigQuery)
	v.SetDefault("bigquery.project_id", "")
	v.SetDefault("bigquery.dataset", "")
	v.SetDefault("bigquery.credentials_file", "")
	v.SetDefault("bigquery.private_key", "")
	v.SetDefault("bigquery.client_email", "")
	v.SetDefault("bigquery.client_id", "")
	v.SetDefault("sql.connection_string", "")

	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load reads and validates the configuration.
func Load(configPath string) (*Config, error) {
	cfg, err := Read(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Read reads configPath (or requestsync.yaml from ./configs or the working
// directory when empty) and overlays environment variables such as
// MONGO_CONNECTION_STRING or SYNC_BATCH_SIZE. Nothing is validated.
func Read(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names used by existing deployments.
	_ = v.BindEnv("bigquery.project_id", "BIGQUERY_PROJECT_ID", "GCP_PROJECT_ID")
	_ = v.BindEnv("bigquery.private_key", "BIGQUERY_PRIVATE_KEY", "PRIVATE_KEY")
	_ = v.BindEnv("bigquery.client_email", "BIGQUERY_CLIENT_EMAIL", "CLIENT_EMAIL")
	_ = v.BindEnv("bigquery.client_id", "BIGQUERY_CLIENT_ID", "CLIENT_ID")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("requestsync")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	require := func(value, env string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", env))
		}
	}

	require(c.Mongo.ConnectionString, "MONGO_CONNECTION_STRING")
	require(c.Mongo.DBName, "MONGO_DB_NAME")
	require(c.Mongo.CollectionName, "MONGO_COLLECTION_NAME")
	require(c.Sync.TimestampField, "SYNC_TIMESTAMP_FIELD")
	require(c.Sync.IDField, "SYNC_ID_FIELD")
	require(c.Sync.TargetTable, "SYNC_TARGET_TABLE")
	require(c.Sync.StateDir, "SYNC_STATE_DIR")
	require(c.Sync.RejectFile, "SYNC_REJECT_FILE")

	if c.Sync.BatchSize < 1 {
		errs = append(errs, errors.New("SYNC_BATCH_SIZE must be >= 1"))
	}
	if c.Sync.LagMinutes < 0 {
		errs = append(errs, errors.New("SYNC_LAG_MINUTES must not be negative"))
	}
	if c.Sync.IntervalMinutes < 1 {
		errs = append(errs, errors.New("SYNC_INTERVAL_MINUTES must be >= 1"))
	}
	if c.Sync.ErrorBackoffSeconds < 1 {
		errs = append(errs, errors.New("SYNC_ERROR_BACKOFF_SECONDS must be >= 1"))
	}
	if c.Sync.InitialTimestamp != "" {
		if _, err := cursor.ParseTimestamp(c.Sync.InitialTimestamp); err != nil {
			errs = append(errs, fmt.Errorf("SYNC_INITIAL_TIMESTAMP: %w", err))
		}
	}

	switch c.Sink.Backend {
	case BackendBigQuery:
		require(c.BigQuery.ProjectID, "BIGQUERY_PROJECT_ID")
		require(c.BigQuery.Dataset, "BIGQUERY_DATASET")
		if c.BigQuery.PrivateKey != "" && c.BigQuery.ClientEmail == "" {
			errs = append(errs, errors.New("CLIENT_EMAIL is required with PRIVATE_KEY"))
		}
	case BackendSQLServer:
		require(c.SQL.ConnectionString, "SQL_CONNECTION_STRING")
	default:
		errs = append(errs, fmt.Errorf("SINK_BACKEND must be %q or %q, got %q", BackendBigQuery, BackendSQLServer, c.Sink.Backend))
	}

	return errors.Join(errs...)
}

// RejectPath resolves RejectFile against StateDir unless it is absolute.
func (s SyncConfig) RejectPath() string {
	if filepath.IsAbs(s.RejectFile) {
		return s.RejectFile
	}
	return filepath.Join(s.StateDir, s.RejectFile)
}

func (s SyncConfig) Lag() time.Duration {
	return time.Duration(s.LagMinutes) * time.Minute
}

func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

func (s SyncConfig) ErrorBackoff() time.Duration {
	return time.Duration(s.ErrorBackoffSeconds) * time.Second
}

// Credentials returns the BigQuery authentication settings.
func (b BigQueryConfig) Credentials() database.BigQueryCredentials {
	return database.BigQueryCredentials{
		File:        b.CredentialsFile,
		PrivateKey:  b.PrivateKey,
		ClientEmail: b.ClientEmail,
		ClientID:    b.ClientID,
	}
}

// Loop returns the sync loop settings.
func (s SyncConfig) Loop() etl.Config {
	return etl.Config{
		Table:        s.TargetTable,
		BatchSize:    s.BatchSize,
		Interval:     s.Interval(),
		Lag:          s.Lag(),
		ErrorBackoff: s.ErrorBackoff(),
	}
}
