package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full process configuration, loaded from config.yaml
// with environment overrides (prefix APP, e.g. APP_DATABASE_HOST).
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	EventLog  EventLogConfig  `mapstructure:"event_log"`
	Mail      MailConfig      `mapstructure:"mail"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	AppURL string `mapstructure:"app_url"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders the keyword/value connection string pgx and the
// migration runner share.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL renders the postgres:// form golang-migrate expects.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type IngestConfig struct {
	BatchSize          int    `mapstructure:"batch_size"`
	ProgressTTLSeconds int    `mapstructure:"progress_ttl_seconds"`
	UploadDir          string `mapstructure:"upload_dir"`
	QueueName          string `mapstructure:"queue_name"`
	Disabled           bool   `mapstructure:"disabled"`
}

type EventLogConfig struct {
	QueueName       string `mapstructure:"queue_name"`
	BatchLimit      int    `mapstructure:"batch_limit"`
	FlushIntervalMS int    `mapstructure:"flush_interval_ms"`
	Disabled        bool   `mapstructure:"disabled"`
}

type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type SchedulerConfig struct {
	ShiftCron string `mapstructure:"shift_cron"`
	Timezone  string `mapstructure:"timezone"`
	Disabled  bool   `mapstructure:"disabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config.yaml from configPath (falling back to defaults when
// absent) and applies environment overrides.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file; defaults + env only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.app_url", "http://localhost:3000")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "agrifield")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ingest.batch_size", 100)
	v.SetDefault("ingest.progress_ttl_seconds", 3600)
	v.SetDefault("ingest.upload_dir", "./uploads")
	v.SetDefault("ingest.queue_name", "csv-upload-queue")

	v.SetDefault("event_log.queue_name", "event-logs-queue")
	v.SetDefault("event_log.batch_limit", 50)
	v.SetDefault("event_log.flush_interval_ms", 600000)

	v.SetDefault("mail.port", 587)

	v.SetDefault("storage.bucket", "agrifield-uploads")

	v.SetDefault("scheduler.shift_cron", "0 18 * * *")
	v.SetDefault("scheduler.timezone", "Asia/Kolkata")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
