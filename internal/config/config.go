package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
	DriverMongo  = "mongo"
)

type Config struct {
	ServiceName     string         `yaml:"service_name"`
	Env             string         `yaml:"env"`
	LogLevel        string         `yaml:"log_level"`
	HTTPAddr        string         `yaml:"http_addr"`
	GRPCAddr        string         `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"`
	SeedFile        string         `yaml:"seed_file"`
	Storage         StorageConfig  `yaml:"storage"`
	Redis           RedisConfig    `yaml:"redis"`
	Kafka           KafkaConfig    `yaml:"kafka"`
	Checkout        CheckoutConfig `yaml:"checkout"`
}

type StorageConfig struct {
	Driver          string        `yaml:"driver"`
	MySQLDSN        string        `yaml:"mysql_dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MongoURI        string        `yaml:"mongo_uri"`
	MongoDatabase   string        `yaml:"mongo_database"`
}

// RedisConfig is optional; an empty Addr selects the in-process cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size"`
}

// KafkaConfig is optional; no brokers disables order events.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type CheckoutConfig struct {
	LockTTL        time.Duration `yaml:"lock_ttl"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	Timeout        time.Duration `yaml:"timeout"`
}

func Default() Config {
	return Config{
		ServiceName:     "storefront",
		Env:             "dev",
		LogLevel:        "info",
		HTTPAddr:        ":8080",
		GRPCAddr:        ":50051",
		ShutdownTimeout: 5 * time.Second,
		Storage: StorageConfig{
			Driver:          DriverMemory,
			MySQLDSN:        "root:root@tcp(localhost:3306)/storefront?parseTime=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
			MongoURI:        "mongodb://localhost:27017",
			MongoDatabase:   "storefront",
		},
		Redis: RedisConfig{
			PoolSize: 100,
		},
		Kafka: KafkaConfig{
			Topic: "order.placed",
		},
		Checkout: CheckoutConfig{
			LockTTL:        30 * time.Second,
			IdempotencyTTL: 24 * time.Hour,
			Timeout:        10 * time.Second,
		},
	}
}

// Load starts from Default, overlays the YAML file at path (if any) and then
// the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("SERVICE_NAME", &c.ServiceName)
	str("ENV", &c.Env)
	str("LOG_LEVEL", &c.LogLevel)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("GRPC_ADDR", &c.GRPCAddr)
	str("SEED_FILE", &c.SeedFile)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("MYSQL_DSN", &c.Storage.MySQLDSN)
	str("MONGO_URI", &c.Storage.MongoURI)
	str("MONGO_DATABASE", &c.Storage.MongoDatabase)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("KAFKA_TOPIC", &c.Kafka.Topic)

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitCSV(v)
	}
	if v, ok := lookup("REDIS_POOL_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_POOL_SIZE: %w", err)
		}
		c.Redis.PoolSize = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout},
		{"CHECKOUT_LOCK_TTL", &c.Checkout.LockTTL},
		{"CHECKOUT_IDEMPOTENCY_TTL", &c.Checkout.IdempotencyTTL},
		{"CHECKOUT_TIMEOUT", &c.Checkout.Timeout},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverMySQL:
		if c.Storage.MySQLDSN == "" {
			errs = append(errs, errors.New("storage.mysql_dsn is required for the mysql driver"))
		}
	case DriverMongo:
		if c.Storage.MongoURI == "" || c.Storage.MongoDatabase == "" {
			errs = append(errs, errors.New("storage.mongo_uri and storage.mongo_database are required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if c.Checkout.LockTTL <= 0 {
		errs = append(errs, errors.New("checkout.lock_ttl must be positive"))
	}
	if c.Checkout.Timeout <= 0 || c.Checkout.Timeout >= c.Checkout.LockTTL {
		errs = append(errs, errors.New("checkout.timeout must be positive and shorter than checkout.lock_ttl"))
	}
	return errors.Join(errs...)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
