package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()

	conf := "transport: tcp\nnode-id: n2\nlisten: 127.0.0.1:4002\nsync-interval: 250ms\n"
	if err := os.WriteFile(filepath.Join(dir, "meshcast.yaml"), []byte(conf), 0600); err != nil {
		t.Fatalf("err: %v", err)
	}

	viper.Reset()
	_config = NewDefaultCLIConfig()

	cmd := NewRunCmd()
	if err := cmd.Flags().Set("datadir", dir); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := cmd.Flags().Set("log", "error"); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := loadConfig(cmd, nil); err != nil {
		t.Fatalf("err: %v", err)
	}

	c := _config.Meshcast

	if c.Transport != "tcp" || c.NodeID != "n2" || c.BindAddr != "127.0.0.1:4002" {
		t.Fatalf("config file values not loaded: %+v", c)
	}

	if c.SyncInterval != 250*time.Millisecond {
		t.Fatalf("SyncInterval should be 250ms, got %v", c.SyncInterval)
	}

	if c.PeersPath() != filepath.Join(dir, "peers.yaml") {
		t.Fatalf("peer book should default to the data dir, got %s", c.PeersPath())
	}

	if err := c.Validate(); err != nil {
		t.Fatalf("err: %v", err)
	}
}
