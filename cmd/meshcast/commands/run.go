package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/meshcast/src/meshcast"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a meshcast node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runMeshcast,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runMeshcast(cmd *cobra.Command, args []string) error {
	engine := meshcast.NewMeshcast(&_config.Meshcast)

	if err := engine.Init(); err != nil {
		_config.Meshcast.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return engine.Run(ctx)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Meshcast.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Meshcast.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-dir", _config.Meshcast.LogDir, "Also write logs to files in this directory")

	// Network
	cmd.Flags().String("transport", _config.Meshcast.Transport, "stdio or tcp")
	cmd.Flags().String("node-id", _config.Meshcast.NodeID, "Id of this node in the peer book (tcp)")
	cmd.Flags().StringP("listen", "l", _config.Meshcast.BindAddr, "Listen IP:Port for meshcast node (tcp)")
	cmd.Flags().StringP("advertise", "a", _config.Meshcast.AdvertiseAddr, "Advertise IP:Port for meshcast node (tcp)")
	cmd.Flags().String("peers", _config.Meshcast.PeersFile, "Peer book, defaults to peers.yaml in datadir (tcp)")
	cmd.Flags().DurationP("timeout", "t", _config.Meshcast.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.Meshcast.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().Bool("no-service", _config.Meshcast.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Meshcast.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Meshcast.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Meshcast.DatabaseDir, "Dabatabase directory")

	// Node configuration
	cmd.Flags().Duration("sync-interval", _config.Meshcast.SyncInterval, "Time between anti-entropy pushes, 0 to disable")
	cmd.Flags().Bool("single", _config.Meshcast.Single, "Run as a single node that never forwards")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Meshcast.SetDataDir(_config.Meshcast.DataDir)

	logFields := logrus.Fields{
		"meshcast.DataDir":      _config.Meshcast.DataDir,
		"meshcast.Transport":    _config.Meshcast.Transport,
		"meshcast.NoService":    _config.Meshcast.NoService,
		"meshcast.Store":        _config.Meshcast.Store,
		"meshcast.LogLevel":     _config.Meshcast.LogLevel,
		"meshcast.SyncInterval": _config.Meshcast.SyncInterval,
		"meshcast.Single":       _config.Meshcast.Single,
	}

	if _config.Meshcast.Transport == "tcp" {
		logFields["meshcast.NodeID"] = _config.Meshcast.NodeID
		logFields["meshcast.BindAddr"] = _config.Meshcast.BindAddr
		logFields["meshcast.AdvertiseAddr"] = _config.Meshcast.AdvertiseAddr
		logFields["meshcast.PeersFile"] = _config.Meshcast.PeersPath()
		logFields["meshcast.TCPTimeout"] = _config.Meshcast.TCPTimeout
		logFields["meshcast.MaxPool"] = _config.Meshcast.MaxPool
	}

	if !_config.Meshcast.NoService {
		logFields["meshcast.ServiceAddr"] = _config.Meshcast.ServiceAddr
	}

	if _config.Meshcast.Store {
		logFields["meshcast.DatabaseDir"] = _config.Meshcast.DatabaseDir
	}

	_config.Meshcast.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/meshcast.toml (.json, .yaml also work)
	viper.SetConfigName("meshcast")               // name of config file (without extension)
	viper.AddConfigPath(_config.Meshcast.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Meshcast.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Meshcast.Logger().Debugf("No config file found in: %s", _config.Meshcast.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
