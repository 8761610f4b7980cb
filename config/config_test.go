package config

import (
	"errors"
	"io"
	"strings"
	"testing"
)

const validTOML = `
server_name = "services.MindForge.org"
numeric = 191
description = "MindForge Services"
uplink_address = "ping.mindforge.org"
uplink_name = "Ping.MindForge.org"
outbound_password = "rustp0w3r!"
expected_inbound_password = "linksecret"
charset_label = "utf-8"

[service_bot]
nick = "ToolBot"
ident = "tool"
host = "tool.mindforge.org"
gecos = "MindForge Tool Services"
channels = ["#services", "#opers"]

[options]
motd_file = "/etc/mindforge/motd.txt"
`

func readerOpener(s string) fileOpener {
	return func(string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

func TestLoadValid(t *testing.T) {
	t.Parallel()

	cfg, err := load("ignored.toml", readerOpener(validTOML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ServerName != "services.MindForge.org" {
		t.Errorf("ServerName = %q", cfg.ServerName)
	}
	if cfg.Numeric != 191 {
		t.Errorf("Numeric = %d", cfg.Numeric)
	}
	if cfg.UplinkPort != 6667 {
		t.Errorf("UplinkPort default = %d, want 6667", cfg.UplinkPort)
	}
	if len(cfg.ServiceBot.Channels) != 2 {
		t.Errorf("Channels = %v", cfg.ServiceBot.Channels)
	}
	if cfg.Options["motd_file"] != "/etc/mindforge/motd.txt" {
		t.Errorf("Options[motd_file] = %q", cfg.Options["motd_file"])
	}
}

func TestLoadDefaultTLSPort(t *testing.T) {
	t.Parallel()

	cfg, err := load("ignored.toml", readerOpener(validTOML+"\nuse_tls = true\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UplinkPort != 6697 {
		t.Errorf("UplinkPort = %d, want 6697", cfg.UplinkPort)
	}
}

func TestLoadMissingFields(t *testing.T) {
	t.Parallel()

	_, err := load("ignored.toml", readerOpener(`server_name = "X"`))
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if len(verr.Problems) == 0 {
		t.Fatal("expected at least one problem listed")
	}
}

func TestLoadOpenFailure(t *testing.T) {
	t.Parallel()

	_, err := load("missing.toml", func(string) (io.ReadCloser, error) {
		return nil, io.ErrUnexpectedEOF
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadBadTOML(t *testing.T) {
	t.Parallel()

	_, err := load("ignored.toml", readerOpener("not = [valid"))
	if err == nil {
		t.Fatal("expected decode error")
	}
}
