package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/stefanh12/holfuy/internal/weather"
	"github.com/stefanh12/holfuy/internal/weather/providers"
)

// Station id limits accepted by the upstream API.
const (
	MaxStations  = 25
	MaxStationID = 999999
)

var validate = validator.New()

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	APIKey   string   `yaml:"api_key" validate:"required"`
	Stations []string `yaml:"stations"`
	WindUnit string   `yaml:"wind_unit" validate:"oneof=m/s km/h mph knots"`
	TempUnit string   `yaml:"temp_unit" validate:"oneof=C F"`
	APIURL   string   `yaml:"api_url" validate:"omitempty,url"`

	// StationIDs holds Stations after parsing: canonical, deduplicated.
	StationIDs []weather.StationID `yaml:"-" validate:"min=1"`

	PollInterval     time.Duration `yaml:"poll_interval" validate:"gte=1s"`
	MaxPollInterval  time.Duration `yaml:"max_poll_interval" validate:"gtefield=PollInterval"`
	RequestTimeout   time.Duration `yaml:"request_timeout" validate:"gte=1s,lte=1m"`
	RequestRetries   int           `yaml:"request_retries" validate:"gte=0,lte=5"`
	FailureThreshold int           `yaml:"station_failure_threshold" validate:"gte=1"`

	// Group prefixes health issue ids so several deployments can share a sink.
	Group string `yaml:"group" validate:"required"`

	Port     string `yaml:"port" validate:"required,numeric"`
	Env      string `yaml:"env" validate:"oneof=dev development local prod production test"`
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig configures the optional MQTT publisher. An empty broker
// disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker" validate:"omitempty,url"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix" validate:"required"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// Load resolves the configuration. Sources, lowest precedence first:
// defaults, the YAML file at path (optional), a .env file, the environment.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "err", err)
	}

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := parseYAML(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse builds a configuration from YAML data alone, without consulting
// the environment except for ${VAR} references inside the document.
func Parse(data []byte) (*AppConfig, error) {
	cfg := defaults()
	if err := parseYAML(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *AppConfig {
	return &AppConfig{
		WindUnit:         string(weather.WindMetersPerSecond),
		TempUnit:         string(weather.TempCelsius),
		PollInterval:     weather.DefaultInterval,
		MaxPollInterval:  weather.DefaultMaxInterval,
		RequestTimeout:   providers.DefaultRequestTimeout,
		FailureThreshold: weather.DefaultFailureThreshold,
		Group:            "holfuy",
		Port:             "8080",
		Env:              "production",
		LogLevel:         "info",
		MQTT: MQTTConfig{
			ClientID:    "holfuy",
			TopicPrefix: "holfuy",
		},
	}
}

func parseYAML(data []byte, cfg *AppConfig) error {
	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("config: parse yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *AppConfig) error {
	setString(&cfg.APIKey, "HOLFUY_API_KEY")
	setString(&cfg.WindUnit, "HOLFUY_WIND_UNIT")
	setString(&cfg.TempUnit, "HOLFUY_TEMP_UNIT")
	setString(&cfg.APIURL, "HOLFUY_API_URL")
	setString(&cfg.Group, "HOLFUY_GROUP")
	setString(&cfg.Port, "PORT")
	setString(&cfg.Env, "APP_ENV")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.MQTT.Broker, "MQTT_BROKER")
	setString(&cfg.MQTT.ClientID, "MQTT_CLIENT_ID")
	setString(&cfg.MQTT.TopicPrefix, "MQTT_TOPIC_PREFIX")
	setString(&cfg.MQTT.Username, "MQTT_USERNAME")
	setString(&cfg.MQTT.Password, "MQTT_PASSWORD")

	if v := os.Getenv("HOLFUY_STATIONS"); v != "" {
		cfg.Stations = strings.Split(v, ",")
	}

	for key, dst := range map[string]*time.Duration{
		"POLL_INTERVAL":     &cfg.PollInterval,
		"MAX_POLL_INTERVAL": &cfg.MaxPollInterval,
		"REQUEST_TIMEOUT":   &cfg.RequestTimeout,
	} {
		if err := setDuration(dst, key); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*int{
		"REQUEST_RETRIES":           &cfg.RequestRetries,
		"STATION_FAILURE_THRESHOLD": &cfg.FailureThreshold,
	} {
		if err := setInt(dst, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *AppConfig) finalize() error {
	c.WindUnit = strings.TrimSpace(c.WindUnit)
	c.TempUnit = strings.ToUpper(strings.TrimSpace(c.TempUnit))

	ids, err := ParseStations(c.Stations)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.StationIDs = ids

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", describe(err))
	}
	return nil
}

// ParseStations parses raw station ids. Every id must be numeric and within
// 1..MaxStationID; duplicates, including ones that differ only in leading
// zeros, are dropped keeping the first occurrence. At most MaxStations
// distinct ids are accepted.
func ParseStations(raw []string) ([]weather.StationID, error) {
	seen := make(map[weather.StationID]struct{}, len(raw))
	out := make([]weather.StationID, 0, len(raw))
	for _, r := range raw {
		s := strings.TrimSpace(r)
		if s == "" {
			continue
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("station id %q is not numeric", s)
		}
		if n < 1 || n > MaxStationID {
			return nil, fmt.Errorf("station id %q out of range [1, %d]", s, MaxStationID)
		}
		id := weather.StationID(strconv.FormatUint(n, 10))
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) > MaxStations {
		return nil, fmt.Errorf("too many stations: %d, at most %d per group", len(out), MaxStations)
	}
	return out, nil
}

// Units returns the configured unit preferences.
func (c *AppConfig) Units() weather.Units {
	return weather.Units{
		Wind: weather.WindUnit(c.WindUnit),
		Temp: weather.TempUnit(c.TempUnit),
	}
}

// Query returns the poll query for the configured station group.
func (c *AppConfig) Query() weather.Query {
	return weather.Query{
		Stations: c.StationIDs,
		APIKey:   c.APIKey,
		Units:    c.Units(),
	}
}

// Engine returns the engine tuning.
func (c *AppConfig) Engine() weather.EngineConfig {
	return weather.EngineConfig{
		DefaultInterval:  c.PollInterval,
		MaxInterval:      c.MaxPollInterval,
		FailureThreshold: c.FailureThreshold,
	}
}

// IsDev reports whether the process runs in a development environment.
func (c *AppConfig) IsDev() bool {
	switch c.Env {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Redacted returns a copy safe to print.
func (c *AppConfig) Redacted() AppConfig {
	cp := *c
	if cp.APIKey != "" {
		cp.APIKey = "***"
	}
	if cp.MQTT.Password != "" {
		cp.MQTT.Password = "***"
	}
	return cp
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func expandEnvVars(s string) (string, error) {
	var firstErr error
	out := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		sub := envVarPattern.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(sub[1]); ok {
			return v
		}
		if sub[2] != "" {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", sub[1])
		return match
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
