package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mosaicnetworks/meshcast/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultPeersFile is the default name of the peer book in the data
	// directory
	DefaultPeersFile = "peers.yaml"
)

// Transports
const (
	TransportStdio = "stdio"
	TransportTCP   = "tcp"
)

// Default configuration values.
const (
	DefaultLogLevel     = "info"
	DefaultTransport    = TransportStdio
	DefaultBindAddr     = "127.0.0.1:1337"
	DefaultServiceAddr  = "127.0.0.1:8000"
	DefaultNoService    = true
	DefaultTCPTimeout   = 1000 * time.Millisecond
	DefaultMaxPool      = 2
	DefaultStore        = false
	DefaultSyncInterval = time.Duration(0)
	DefaultSingle       = false
)

// Config contains all the configuration properties of a meshcast node.
type Config struct {
	// DataDir is the top-level directory containing configuration files and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log" validate:"omitempty,oneof=debug info warn error fatal panic"`

	// LogDir, when set, receives one file per log level (info.log, debug.log,
	// error.log) in addition to stderr.
	LogDir string `mapstructure:"log-dir"`

	// Transport selects how the node talks to clients and peers: "stdio" for
	// newline-delimited JSON on standard input and output, "tcp" for a static
	// deployment described by a peer book.
	Transport string `mapstructure:"transport" validate:"oneof=stdio tcp"`

	// NodeID is the id of this node in the peer book. With the stdio transport
	// the id is assigned by the init message instead.
	NodeID string `mapstructure:"node-id" validate:"required_if=Transport tcp"`

	// BindAddr is the local address:port where this node receives requests
	// from other nodes when the transport is tcp.
	BindAddr string `mapstructure:"listen" validate:"required_if=Transport tcp"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// PeersFile is the peer book. Defaults to peers.yaml in DataDir.
	PeersFile string `mapstructure:"peers"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// TCPTimeout is the I/O deadline of requests sent to other nodes.
	TCPTimeout time.Duration `mapstructure:"timeout" validate:"min=0"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool" validate:"min=0"`

	// Store keeps observed values in a badger database instead of memory.
	// The database is recreated on every start.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// SyncInterval is the base period of anti-entropy pushes to a random
	// neighbour. Zero disables anti-entropy.
	SyncInterval time.Duration `mapstructure:"sync-interval" validate:"min=0"`

	// Single runs the node alone: topology requests are acknowledged and
	// ignored, and nothing is forwarded.
	Single bool `mapstructure:"single"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:      DefaultDataDir(),
		LogLevel:     DefaultLogLevel,
		Transport:    DefaultTransport,
		BindAddr:     DefaultBindAddr,
		ServiceAddr:  DefaultServiceAddr,
		NoService:    DefaultNoService,
		TCPTimeout:   DefaultTCPTimeout,
		MaxPool:      DefaultMaxPool,
		Store:        DefaultStore,
		DatabaseDir:  DefaultDatabaseDir(),
		SyncInterval: DefaultSyncInterval,
		Single:       DefaultSingle,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database directory
// if it is currently set to the default value. If the database directory is
// not currently the default, it means the user has explicitely set it to
// something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// PeersPath returns the full path of the peer book.
func (c *Config) PeersPath() string {
	if c.PeersFile != "" {
		return c.PeersFile
	}
	return filepath.Join(c.DataDir, DefaultPeersFile)
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}
	return nil
}

// Logger returns a formatted logrus Entry, with prefix set to "meshcast".
// Output goes to stderr since stdout may carry protocol messages.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Out = os.Stderr
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogDir != "" {
			c.addFileHooks(c.logger)
		}
	}
	return c.logger.WithField("prefix", "meshcast")
}

func (c *Config) addFileHooks(logger *logrus.Logger) {
	if err := os.MkdirAll(c.LogDir, 0755); err != nil {
		logger.WithError(err).Warn("Failed to create log directory, using stderr only")
		return
	}

	pathMap := lfshook.PathMap{
		logrus.InfoLevel:  filepath.Join(c.LogDir, "info.log"),
		logrus.DebugLevel: filepath.Join(c.LogDir, "debug.log"),
		logrus.WarnLevel:  filepath.Join(c.LogDir, "error.log"),
		logrus.ErrorLevel: filepath.Join(c.LogDir, "error.log"),
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config based
// on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Meshcast")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Meshcast")
		} else {
			return filepath.Join(home, ".meshcast")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
