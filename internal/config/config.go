// Package config loads relay settings from a TOML file with environment
// overrides. Precedence, lowest first: built-in defaults, the file,
// TTYRELAY_* variables.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/chronologos/ttyrelay/internal/auth"
	"github.com/chronologos/ttyrelay/internal/terminal"
)

const EnvPrefix = "TTYRELAY"

// Duration reads "90s" style strings from both TOML and the environment.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Challenge is one keyboard-interactive prompt. Response is a regular
// expression the whole answer must match.
type Challenge struct {
	Query    string `toml:"query"`
	Response string `toml:"response"`
	Echo     bool   `toml:"echo"`
}

type Config struct {
	SSHAddr  string `toml:"ssh_addr" envconfig:"SSH_ADDR"`
	HTTPAddr string `toml:"http_addr" envconfig:"HTTP_ADDR"`

	// NativeAddr enables the QUIC and TLS device listener when set.
	NativeAddr   string `toml:"native_addr" envconfig:"NATIVE_ADDR"`
	NativeCert   string `toml:"native_cert" envconfig:"NATIVE_CERT"`
	NativeKey    string `toml:"native_key" envconfig:"NATIVE_KEY"`
	// DeviceSecret is a hex-encoded key native devices must prove. Empty
	// accepts any device that knows a pairing token.
	DeviceSecret string `toml:"device_secret" envconfig:"DEVICE_SECRET"`

	// PublicURL is how devices reach the HTTP listener. It appears in the
	// pairing banner and the bootstrap script.
	PublicURL       string `toml:"public_url" envconfig:"PUBLIC_URL"`
	HostKeyPath     string `toml:"host_key_path" envconfig:"HOST_KEY_PATH"`
	BootstrapScript string `toml:"bootstrap_script" envconfig:"BOOTSTRAP_SCRIPT"`

	PairingTimeout Duration `toml:"pairing_timeout" envconfig:"PAIRING_TIMEOUT"`
	IdleTimeout    Duration `toml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	FlushDelay     Duration `toml:"flush_delay" envconfig:"FLUSH_DELAY"`
	ColorLevel     string   `toml:"color_level" envconfig:"COLOR_LEVEL"`

	ServerVersion string      `toml:"server_version" envconfig:"SERVER_VERSION"`
	Greeting      string      `toml:"greeting" envconfig:"GREETING"`
	Instructions  string      `toml:"instructions" envconfig:"INSTRUCTIONS"`
	Challenges    []Challenge `toml:"challenges" ignored:"true"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		SSHAddr:        ":2222",
		HTTPAddr:       ":8080",
		PublicURL:      "http://localhost:8080",
		HostKeyPath:    "hostkey",
		PairingTimeout: Duration{10 * time.Minute},
		IdleTimeout:    Duration{time.Hour},
		ColorLevel:     "256",
		ServerVersion:  "SSH-2.0-TTYRELAY",
	}
}

// Load reads path (skipped when empty), applies the environment and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return Config{}, fmt.Errorf("parse %s: unknown settings\n%s", path, strict.String())
			}
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	// No envconfig defaults: an unset variable must not clobber the file.
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.SSHAddr == "" {
		errs = append(errs, errors.New("ssh_addr is required"))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.PairingTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("pairing_timeout must be positive, got %v", c.PairingTimeout))
	}
	if c.IdleTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("idle_timeout must be positive, got %v", c.IdleTimeout))
	}
	if c.FlushDelay.Duration < 0 {
		errs = append(errs, fmt.Errorf("flush_delay must not be negative, got %v", c.FlushDelay))
	}
	if _, err := terminal.ParseLevel(c.ColorLevel); err != nil {
		errs = append(errs, fmt.Errorf("color_level: %w", err))
	}
	if !strings.HasPrefix(c.ServerVersion, "SSH-2.0-") {
		errs = append(errs, fmt.Errorf("server_version must start with SSH-2.0-, got %q", c.ServerVersion))
	}
	if (c.NativeCert == "") != (c.NativeKey == "") {
		errs = append(errs, errors.New("native_cert and native_key must be set together"))
	}
	if _, err := c.Secret(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.AuthChallenges(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Secret decodes device_secret. It returns nil when none is configured.
func (c Config) Secret() ([]byte, error) {
	if c.DeviceSecret == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.DeviceSecret)
	if err != nil || len(key) != auth.SecretSize {
		return nil, fmt.Errorf("device_secret must be %d hex characters", 2*auth.SecretSize)
	}
	return key, nil
}

// Level is the parsed color_level. Call after Validate.
func (c Config) Level() terminal.Level {
	l, _ := terminal.ParseLevel(c.ColorLevel)
	return l
}

// AuthChallenges compiles the configured challenges.
func (c Config) AuthChallenges() ([]auth.Challenge, error) {
	out := make([]auth.Challenge, 0, len(c.Challenges))
	for _, ch := range c.Challenges {
		compiled, err := auth.NewChallenge(ch.Query, ch.Response, ch.Echo)
		if err != nil {
			return nil, err
		}
		out = append(out, compiled)
	}
	return out, nil
}
