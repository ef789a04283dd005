package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	perrors "github.com/xfyecn/sitewhere-master-sub001/errors"
)

// Config is the complete pipeline configuration: shared infrastructure
// endpoints plus one entry per tenant.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	NATS     NATSConfig     `yaml:"nats"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Influx   InfluxConfig   `yaml:"influx"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Tenants  []TenantConfig `yaml:"tenants"`
}

// ServerConfig identifies the process.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig controls the Prometheus and health endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// NATSConfig defines NATS connection settings. An empty URL means no shared
// connection is opened.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	Token         string        `yaml:"token"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	PingInterval  time.Duration `yaml:"ping_interval"`
}

// MQTTConfig holds broker defaults for MQTT receivers and publishers.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// KafkaConfig holds the default broker list.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// RedisConfig holds the default Redis endpoint.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig holds the default device registry database.
type PostgresConfig struct {
	DSN           string `yaml:"dsn"`
	MaxConns      int32  `yaml:"max_conns"`
	MigrateSchema bool   `yaml:"migrate_schema"`
}

// InfluxConfig holds the default InfluxDB v2 endpoint.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// MinIOConfig holds the default S3-compatible endpoint.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseTLS    bool   `yaml:"use_tls"`
}

// TenantConfig describes one tenant engine.
type TenantConfig struct {
	ID    string `yaml:"id"`
	Token string `yaml:"token"`
	Name  string `yaml:"name"`

	// Identity, EventStore and StreamStore select the tenant's data stores.
	// An empty type falls back to the in-memory implementation.
	Identity    ComponentConfig `yaml:"identity"`
	EventStore  ComponentConfig `yaml:"event_store"`
	StreamStore ComponentConfig `yaml:"stream_store"`

	Sources  []SourceConfig    `yaml:"sources"`
	Inbound  []ComponentConfig `yaml:"inbound"`
	Outbound []ComponentConfig `yaml:"outbound"`
}

// SourceConfig describes an event source: one decoder fed by N receivers.
type SourceConfig struct {
	ID        string            `yaml:"id"`
	Decoder   ComponentConfig   `yaml:"decoder"`
	Receivers []ComponentConfig `yaml:"receivers"`
}

// ComponentConfig selects a factory by type and carries its parameters.
type ComponentConfig struct {
	Type     string `yaml:"type"`
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
	Params   Params `yaml:"params"`
}

// Params are factory specific settings, decoded into a typed struct by the
// factory that owns them.
type Params map[string]any

// Decode copies the params into out, which must be a pointer to a struct with
// yaml tags. Unknown keys are rejected.
func (p Params) Decode(out any) error {
	if len(p) == 0 {
		return nil
	}
	data, err := yaml.Marshal(map[string]any(p))
	if err != nil {
		return perrors.WrapInvalid(err, "Params", "Decode", "marshal params")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return perrors.WrapInvalid(fmt.Errorf("%w: %v", perrors.ErrInvalidConfig, err), "Params", "Decode", "decode params")
	}
	return nil
}

// Tenant returns the tenant with the given id.
func (c *Config) Tenant(id string) (*TenantConfig, bool) {
	for i := range c.Tenants {
		if c.Tenants[i].ID == id {
			return &c.Tenants[i], true
		}
	}
	return nil, false
}

// Validate checks structure only. Whether a component type exists is decided
// by the factory registry at build time.
func (c *Config) Validate() error {
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port %d out of range", c.Metrics.Port)
	}
	if len(c.Tenants) == 0 {
		return errors.New("at least one tenant is required")
	}

	seen := make(map[string]bool, len(c.Tenants))
	for i := range c.Tenants {
		t := &c.Tenants[i]
		if t.ID == "" {
			return fmt.Errorf("tenants[%d]: id is required", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("tenant %s: duplicate id", t.ID)
		}
		seen[t.ID] = true
		if err := t.validate(); err != nil {
			return fmt.Errorf("tenant %s: %w", t.ID, err)
		}
	}
	return nil
}

func (t *TenantConfig) validate() error {
	sources := make(map[string]bool, len(t.Sources))
	for i, s := range t.Sources {
		if s.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if sources[s.ID] {
			return fmt.Errorf("source %s: duplicate id", s.ID)
		}
		sources[s.ID] = true
		if s.Decoder.Type == "" {
			return fmt.Errorf("source %s: decoder type is required", s.ID)
		}
		if len(s.Receivers) == 0 {
			return fmt.Errorf("source %s: at least one receiver is required", s.ID)
		}
		for j, r := range s.Receivers {
			if r.Type == "" {
				return fmt.Errorf("source %s: receivers[%d]: type is required", s.ID, j)
			}
		}
	}
	for i, p := range t.Inbound {
		if p.Type == "" {
			return fmt.Errorf("inbound[%d]: type is required", i)
		}
	}
	for i, p := range t.Outbound {
		if p.Type == "" {
			return fmt.Errorf("outbound[%d]: type is required", i)
		}
	}
	return nil
}

// String renders the config as YAML with secrets masked.
func (c *Config) String() string {
	masked := *c
	masked.NATS.Password = mask(masked.NATS.Password)
	masked.NATS.Token = mask(masked.NATS.Token)
	masked.MQTT.Password = mask(masked.MQTT.Password)
	masked.Redis.Password = mask(masked.Redis.Password)
	masked.Postgres.DSN = mask(masked.Postgres.DSN)
	masked.Influx.Token = mask(masked.Influx.Token)
	masked.MinIO.SecretKey = mask(masked.MinIO.SecretKey)

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// Loader handles configuration loading with layers and overrides.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader reading PIPELINE_* environment overrides.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  "PIPELINE",
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables validation after loading.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every layer and the environment, then validates.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(l.getDefaults())
	if err != nil {
		return nil, err
	}

	for _, path := range l.layers {
		raw, err := l.loadRawYAML(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		merged = deepMergeMaps(merged, raw)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, err
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, perrors.WrapInvalid(fmt.Errorf("%w: %v", perrors.ErrInvalidConfig, err), "Loader", "Load", "validate config")
		}
	}
	return cfg, nil
}

// Parse decodes a single YAML document on top of the defaults without
// touching the filesystem or the environment.
func Parse(data []byte) (*Config, error) {
	base, err := toMap(Default())
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, perrors.WrapInvalid(err, "config", "Parse", "unmarshal yaml")
	}
	return fromMap(deepMergeMaps(base, raw))
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:            "pipeline",
			ShutdownTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		NATS: NATSConfig{
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			PingInterval:  30 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxConns:      10,
			MigrateSchema: true,
		},
		MinIO: MinIOConfig{
			Bucket: "device-streams",
		},
	}
}

func (l *Loader) getDefaults() *Config {
	return Default()
}

func (l *Loader) loadRawYAML(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, perrors.WrapInvalid(fmt.Errorf("%w: %v", perrors.ErrInvalidConfig, err), "config", "decode", "decode config")
	}
	return &cfg, nil
}

// deepMergeMaps merges override into base. Nested maps merge key by key;
// lists and scalars are replaced.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if overrideMap, ok := v.(map[string]any); ok {
			if baseMap, ok := result[k].(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := func(suffix string, dst *string) error {
		key := l.envPrefix + "_" + suffix
		val := os.Getenv(key)
		if val == "" {
			return nil
		}
		if err := validateEnvVar(key, val); err != nil {
			return err
		}
		*dst = val
		return nil
	}

	overrides := []struct {
		suffix string
		dst    *string
	}{
		{"SERVER_NAME", &cfg.Server.Name},
		{"NATS_URL", &cfg.NATS.URL},
		{"NATS_USERNAME", &cfg.NATS.Username},
		{"NATS_PASSWORD", &cfg.NATS.Password},
		{"NATS_TOKEN", &cfg.NATS.Token},
		{"MQTT_BROKER", &cfg.MQTT.Broker},
		{"MQTT_USERNAME", &cfg.MQTT.Username},
		{"MQTT_PASSWORD", &cfg.MQTT.Password},
		{"REDIS_ADDR", &cfg.Redis.Addr},
		{"REDIS_PASSWORD", &cfg.Redis.Password},
		{"POSTGRES_DSN", &cfg.Postgres.DSN},
		{"INFLUX_URL", &cfg.Influx.URL},
		{"INFLUX_TOKEN", &cfg.Influx.Token},
		{"MINIO_ENDPOINT", &cfg.MinIO.Endpoint},
		{"MINIO_ACCESS_KEY", &cfg.MinIO.AccessKey},
		{"MINIO_SECRET_KEY", &cfg.MinIO.SecretKey},
	}
	for _, o := range overrides {
		if err := str(o.suffix, o.dst); err != nil {
			return err
		}
	}

	var brokers string
	if err := str("KAFKA_BROKERS", &brokers); err != nil {
		return err
	}
	if brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}

	var port string
	if err := str("METRICS_PORT", &port); err != nil {
		return err
	}
	if port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%s_METRICS_PORT: %w", l.envPrefix, err)
		}
		cfg.Metrics.Port = p
	}
	return nil
}
