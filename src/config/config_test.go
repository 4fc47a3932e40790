package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestDefaultConfigIsValid(t *testing.T) {
	conf := NewDefaultConfig()

	if err := conf.Validate(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if conf.Transport != TransportStdio {
		t.Fatalf("default transport should be stdio, not %s", conf.Transport)
	}
	if conf.SyncInterval != 0 {
		t.Fatalf("anti-entropy should be disabled by default")
	}
}

func TestValidateTransport(t *testing.T) {
	conf := NewDefaultConfig()
	conf.Transport = "udp"

	if err := conf.Validate(); err == nil {
		t.Fatalf("udp transport should be rejected")
	}
}

func TestValidateTCPRequiresNodeID(t *testing.T) {
	conf := NewDefaultConfig()
	conf.Transport = TransportTCP

	err := conf.Validate()
	if err == nil || !strings.Contains(err.Error(), "NodeID") {
		t.Fatalf("expected NodeID error, got %v", err)
	}

	conf.NodeID = "n1"
	if err := conf.Validate(); err != nil {
		t.Fatalf("err: %v", err)
	}
}

func TestValidateNegativeInterval(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SyncInterval = -time.Second

	if err := conf.Validate(); err == nil {
		t.Fatalf("negative sync interval should be rejected")
	}
}

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/meshcast")

	if conf.DatabaseDir != filepath.Join("/tmp/meshcast", DefaultBadgerFile) {
		t.Fatalf("bad database dir: %s", conf.DatabaseDir)
	}
	if conf.PeersPath() != filepath.Join("/tmp/meshcast", DefaultPeersFile) {
		t.Fatalf("bad peers path: %s", conf.PeersPath())
	}

	conf.DatabaseDir = "/var/db"
	conf.SetDataDir("/tmp/other")
	if conf.DatabaseDir != "/var/db" {
		t.Fatalf("explicit database dir should be kept, got %s", conf.DatabaseDir)
	}

	conf.PeersFile = "/etc/peers.json"
	if conf.PeersPath() != "/etc/peers.json" {
		t.Fatalf("explicit peers file should be kept, got %s", conf.PeersPath())
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"bogus": logrus.DebugLevel,
	}
	for s, l := range cases {
		if LogLevel(s) != l {
			t.Fatalf("LogLevel(%q) should be %v, not %v", s, l, LogLevel(s))
		}
	}
}

func TestLoggerPrefix(t *testing.T) {
	conf := NewTestConfig(t, logrus.DebugLevel)

	entry := conf.Logger()
	if entry.Data["prefix"] != "meshcast" {
		t.Fatalf("prefix should be meshcast, not %v", entry.Data["prefix"])
	}
}

func TestLoggerFiles(t *testing.T) {
	dir := t.TempDir()

	conf := NewDefaultConfig()
	conf.LogLevel = "debug"
	conf.LogDir = filepath.Join(dir, "logs")

	conf.Logger().Info("hello")
	conf.Logger().Error("oops")

	for _, name := range []string{"info.log", "error.log"} {
		data, err := os.ReadFile(filepath.Join(conf.LogDir, name))
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if len(data) == 0 {
			t.Fatalf("%s is empty", name)
		}
	}
}
