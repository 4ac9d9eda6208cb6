package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-ini/ini"
)

const (
	DefaultConfigFile    = "devices.config"
	DefaultAPIKeyFile    = "api_key.secret"
	DefaultLogFile       = "request_logs.log"
	DefaultCheckInterval = 900 * time.Second
	DefaultAPIBaseURL    = "https://openapi.api.govee.com"
	DefaultPerMinute     = 10
	DefaultPerDay        = 10000
	DefaultMQTTTopic     = "humidistat/state"

	SensorSection   = "humidity_sensor"
	ActuatorSection = "control_device"
)

// ErrNotFound is returned when the device config file does not exist.
var ErrNotFound = errors.New("device config file not found")

// ValidationError reports a missing or malformed configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Device identifies one Govee device by model and address.
type Device struct {
	SKU    string
	Device string
}

// Service holds loop cadence and listener settings.
type Service struct {
	CheckInterval time.Duration
	APIBaseURL    string
	HTTPAddr      string
	GRPCAddr      string
}

// RateLimit holds the Govee request budget.
type RateLimit struct {
	PerMinute int
	PerDay    int
}

// MQTT configures the optional cycle state publisher.
type MQTT struct {
	Broker       string
	Topic        string
	ClientID     string
	Username     string
	PasswordFile string
}

func (m MQTT) Enabled() bool {
	return m.Broker != ""
}

// Config is the parsed device configuration.
type Config struct {
	Sensor    Device
	Actuator  Device
	Service   Service
	RateLimit RateLimit
	MQTT      MQTT
}

// Load parses the INI device config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat config: %w", err)
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return fromFile(file)
}

// Parse reads config from raw INI bytes.
func Parse(data []byte) (*Config, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return fromFile(file)
}

func fromFile(file *ini.File) (*Config, error) {
	cfg := &Config{
		Sensor:   readDevice(file, SensorSection),
		Actuator: readDevice(file, ActuatorSection),
	}

	service := file.Section("service")
	interval, err := parseInterval(service.Key("check_interval").String())
	if err != nil {
		return nil, err
	}
	cfg.Service = Service{
		CheckInterval: interval,
		APIBaseURL:    strings.TrimSpace(service.Key("api_base_url").String()),
		HTTPAddr:      strings.TrimSpace(service.Key("http_addr").String()),
		GRPCAddr:      strings.TrimSpace(service.Key("grpc_addr").String()),
	}

	limits := file.Section("rate_limit")
	cfg.RateLimit = RateLimit{
		PerMinute: limits.Key("per_minute").MustInt(0),
		PerDay:    limits.Key("per_day").MustInt(0),
	}

	mqtt := file.Section("mqtt")
	cfg.MQTT = MQTT{
		Broker:       strings.TrimSpace(mqtt.Key("broker").String()),
		Topic:        strings.TrimSpace(mqtt.Key("topic").String()),
		ClientID:     strings.TrimSpace(mqtt.Key("client_id").String()),
		Username:     strings.TrimSpace(mqtt.Key("username").String()),
		PasswordFile: strings.TrimSpace(mqtt.Key("password_file").String()),
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readDevice(file *ini.File, name string) Device {
	section, err := file.GetSection(name)
	if err != nil {
		return Device{}
	}
	return Device{
		SKU:    strings.TrimSpace(section.Key("sku").String()),
		Device: strings.TrimSpace(section.Key("device").String()),
	}
}

// parseInterval accepts a Go duration ("15m") or plain seconds ("900").
func parseInterval(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, ValidationError{Field: "service.check_interval", Message: fmt.Sprintf("invalid duration %q", raw)}
	}
	return d, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Service.CheckInterval == 0 {
		cfg.Service.CheckInterval = DefaultCheckInterval
	}
	if cfg.Service.APIBaseURL == "" {
		cfg.Service.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.RateLimit.PerMinute == 0 {
		cfg.RateLimit.PerMinute = DefaultPerMinute
	}
	if cfg.RateLimit.PerDay == 0 {
		cfg.RateLimit.PerDay = DefaultPerDay
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = DefaultMQTTTopic
	}
}

// Validate enforces the invariants required before the control loop starts.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.Sensor.SKU == "" {
		return ValidationError{Field: SensorSection + ".sku", Message: "required field is empty"}
	}
	if cfg.Sensor.Device == "" {
		return ValidationError{Field: SensorSection + ".device", Message: "required field is empty"}
	}
	if cfg.Actuator.SKU == "" {
		return ValidationError{Field: ActuatorSection + ".sku", Message: "required field is empty"}
	}
	if cfg.Actuator.Device == "" {
		return ValidationError{Field: ActuatorSection + ".device", Message: "required field is empty"}
	}
	if cfg.Service.CheckInterval <= 0 {
		return ValidationError{Field: "service.check_interval", Message: "must be positive"}
	}
	if cfg.RateLimit.PerMinute < 0 {
		return ValidationError{Field: "rate_limit.per_minute", Message: "must not be negative"}
	}
	if cfg.RateLimit.PerDay < 0 {
		return ValidationError{Field: "rate_limit.per_day", Message: "must not be negative"}
	}
	return nil
}

// LoadAPIKey reads the pre-shared API key from a file, trimming whitespace.
func LoadAPIKey(path string) (string, error) {
	key, err := ReadSecretFile(path)
	if err != nil {
		return "", fmt.Errorf("read api key: %w", err)
	}
	if key == "" {
		return "", ValidationError{Field: "api_key", Message: fmt.Sprintf("%s is empty", path)}
	}
	return key, nil
}

// ReadSecretFile returns the trimmed content of a secret file.
func ReadSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
