// SPDX-License-Identifier: MIT
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"spectral/internal/log"
)

// Format identifies the encoding of a config file.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

func (f Format) String() string {
	if f == FormatTOML {
		return "toml"
	}
	return "yaml"
}

// DetectFormat picks the decoder from the file extension. Anything that is
// not .toml is read as YAML.
func DetectFormat(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Candidate file names searched, in order, when no path is given.
var searchPaths = []string{"config.yaml", "config.yml", "config.toml"}

// LoadConfig loads configuration from path. If path is empty it searches the
// working directory for config.yaml, config.yml or config.toml, and falls
// back to built-in defaults when none exists. Environment overrides are
// applied after the file, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		for _, candidate := range searchPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg := Default()
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, DetectFormat(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.Path = path

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes data on top of the defaults, so keys missing from the file
// keep their default values. It does not validate.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
			return nil, fmt.Errorf("toml: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("yaml: %w", err)
		}
	}
	return cfg, nil
}

// Encode writes cfg in the given format, used by the config command to
// print the effective configuration.
func Encode(cfg *Config, format Format) ([]byte, error) {
	if format == FormatTOML {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return yaml.Marshal(cfg)
}

// applyEnvOverrides reads the ENV_* variables. Malformed values are logged
// and ignored so a typo in the environment never prevents startup.
func (cfg *Config) applyEnvOverrides() {
	envBool("ENV_DEBUG", &cfg.Debug)
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		log.Infof("configuration: overriding log_level from env: %s", val)
	}

	envBool("ENV_UDP_ENABLED", &cfg.Transport.UDPEnabled)
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		log.Infof("configuration: overriding transport.udp_target_address from env: %s", val)
	}
	envDuration("ENV_UDP_SEND_INTERVAL", &cfg.Transport.UDPSendInterval)

	if val, ok := os.LookupEnv("ENV_FFT_ORDER"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Analysis.FFTOrder = n
			log.Infof("configuration: overriding analysis.fft_order from env: %d", n)
		} else {
			log.Warnf("configuration: ignoring ENV_FFT_ORDER=%q: %v", val, err)
		}
	}
	if val, ok := os.LookupEnv("ENV_WINDOW"); ok {
		cfg.Analysis.Window = val
		log.Infof("configuration: overriding analysis.window from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_OVERLAP"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Analysis.Overlap = f
			log.Infof("configuration: overriding analysis.overlap from env: %g", f)
		} else {
			log.Warnf("configuration: ignoring ENV_OVERLAP=%q: %v", val, err)
		}
	}
}

func envBool(name string, dst *bool) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		log.Warnf("configuration: ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = b
	log.Infof("configuration: overriding from env %s=%v", name, b)
}

func envDuration(name string, dst *time.Duration) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		log.Warnf("configuration: ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = d
	log.Infof("configuration: overriding from env %s=%s", name, d)
}
