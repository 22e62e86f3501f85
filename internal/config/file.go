package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML layout of CONFIG_FILE. Only the sink section can be
// set from the file; anything left empty keeps the environment value.
type fileConfig struct {
	Sink struct {
		Kind           string `yaml:"kind"`
		Encoding       string `yaml:"encoding"`
		LogLevel       string `yaml:"log_level"`
		ConnectTimeout string `yaml:"connect_timeout"`
		Broker         string `yaml:"broker"`
		Port           int    `yaml:"port"`
		ClientID       string `yaml:"client_id"`
		Topic          string `yaml:"topic"`
		SQLitePath     string `yaml:"sqlite_path"`
	} `yaml:"sink"`
}

// LoadFile overlays the sink section of the YAML file at path onto base.
func LoadFile(path string, base Config) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg := base
	s := fc.Sink
	if v := strings.TrimSpace(s.Kind); v != "" {
		cfg.Sink.Kind = strings.ToLower(v)
	}
	if v := strings.TrimSpace(s.Encoding); v != "" {
		cfg.Sink.Encoding = strings.ToLower(v)
	}
	if v := strings.TrimSpace(s.LogLevel); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("config file sink.log_level: %w", err)
		}
		cfg.Sink.LogLevel = level
	}
	if v := strings.TrimSpace(s.ConnectTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config file sink.connect_timeout %q: %w", v, err)
		}
		cfg.Sink.ConnectTimeout = d
	}
	if v := strings.TrimSpace(s.Broker); v != "" {
		cfg.Sink.MQTTBroker = v
	}
	if s.Port != 0 {
		cfg.Sink.MQTTPort = s.Port
	}
	if v := strings.TrimSpace(s.ClientID); v != "" {
		cfg.Sink.MQTTClientID = v
	}
	if v := strings.TrimSpace(s.Topic); v != "" {
		cfg.Sink.MQTTTopic = v
	}
	if v := strings.TrimSpace(s.SQLitePath); v != "" {
		cfg.Sink.SQLitePath = v
	}
	return cfg, nil
}
