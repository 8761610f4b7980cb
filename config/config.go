/*
Package config loads the static parameters for a single uplink from a TOML
file into an immutable Config value. Once loaded, a Config is never
mutated; it is shared read-only between the driver and the protocol
engine.
*/
package config

import (
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const (
	// defaultPlainPort is the uplink port used when none is configured and
	// TLS is disabled.
	defaultPlainPort = uint16(6667)
	// defaultTLSPort is the uplink port used when none is configured and
	// TLS is enabled.
	defaultTLSPort = uint16(6697)
)

// ServiceBot identifies the synthetic service client introduced once the
// link has synced, and the channels it joins.
type ServiceBot struct {
	Nick     string   `toml:"nick"`
	Ident    string   `toml:"ident"`
	Host     string   `toml:"host"`
	Gecos    string   `toml:"gecos"`
	Channels []string `toml:"channels"`
}

// Config holds every static parameter a link needs. It is created once by
// Load and is safe to share by pointer across goroutines: nothing in this
// package mutates a Config after it is returned.
type Config struct {
	ServerName              string `toml:"server_name"`
	Numeric                 uint16 `toml:"numeric"`
	Description             string `toml:"description"`
	UplinkAddress           string `toml:"uplink_address"`
	UplinkName              string `toml:"uplink_name"`
	UplinkPort              uint16 `toml:"uplink_port"`
	UseTLS                  bool   `toml:"use_tls"`
	NoVerifyCert            bool   `toml:"no_verify_cert"`
	CAFile                  string `toml:"ca_file"`
	OutboundPassword        string `toml:"outbound_password"`
	ExpectedInboundPassword string `toml:"expected_inbound_password"`
	CharsetLabel            string `toml:"charset_label"`

	ServiceBot ServiceBot `toml:"service_bot"`

	// Options is a free-form string map for settings this core does not
	// interpret itself but that outer policy layers may consume.
	Options map[string]string `toml:"options"`
}

// fileOpener is indirected so tests can load from something other than the
// filesystem.
type fileOpener func(string) (io.ReadCloser, error)

// Load reads and validates the TOML configuration file at path.
func Load(path string) (*Config, error) {
	return load(path, func(name string) (io.ReadCloser, error) {
		return os.Open(name)
	})
}

func load(path string, open fileOpener) (*Config, error) {
	f, err := open(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: failed to open configuration file")
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeReader(r, &cfg); err != nil {
		return nil, errors.Wrap(err, "config: failed to decode configuration file")
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.UplinkPort == 0 {
		if c.UseTLS {
			c.UplinkPort = defaultTLSPort
		} else {
			c.UplinkPort = defaultPlainPort
		}
	}
}

// ValidationError collects every problem found while validating a Config,
// rather than stopping at the first one.
type ValidationError struct {
	Problems []string
}

// Error satisfies the error interface.
func (v *ValidationError) Error() string {
	return "config: invalid configuration: " + strings.Join(v.Problems, "; ")
}

func (c *Config) validate() error {
	var problems []string

	require := func(val, name string) {
		if val == "" {
			problems = append(problems, "missing required field "+name)
		}
	}

	require(c.ServerName, "server_name")
	require(c.Description, "description")
	require(c.UplinkAddress, "uplink_address")
	require(c.UplinkName, "uplink_name")
	require(c.OutboundPassword, "outbound_password")
	require(c.ExpectedInboundPassword, "expected_inbound_password")
	require(c.CharsetLabel, "charset_label")
	require(c.ServiceBot.Nick, "service_bot.nick")
	require(c.ServiceBot.Ident, "service_bot.ident")
	require(c.ServiceBot.Host, "service_bot.host")

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
