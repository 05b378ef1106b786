package commands

import (
	"bufio"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/treecast/treecast/src/treecast"
)

//NewRunCmd returns the command that starts a treecast node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runTreecast,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runTreecast(cmd *cobra.Command, args []string) error {
	chat, _ := cmd.Flags().GetBool("chat")

	engine := treecast.NewTreecast(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	// Print every delivered message. Without a consumer the delivery channel
	// would eventually fill up and stall the node.
	go func() {
		for m := range engine.Node.Messages() {
			fmt.Printf("%s> %s\n", m.ID.Origin.NetAddr, m.Payload)
		}
	}()

	if chat {
		go readStdin(engine)
	}

	return engine.Run()
}

// readStdin publishes every line typed on stdin.
func readStdin(engine *treecast.Treecast) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if _, err := engine.Node.Publish([]byte(line)); err != nil {
			return
		}
	}
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Mirror log output to this file")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for treecast node")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for treecast node")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")

	// Membership
	cmd.Flags().Int("active-view-size", _config.NodeConfig.ActiveViewSize, "Capacity of the active view")
	cmd.Flags().Int("passive-view-size", _config.NodeConfig.PassiveViewSize, "Capacity of the passive view")
	cmd.Flags().Int("active-walk-length", _config.NodeConfig.ActiveRandomWalkLength, "Initial TTL of join walks")
	cmd.Flags().Int("passive-walk-length", _config.NodeConfig.PassiveRandomWalkLength, "TTL at which join walks seed the passive view")
	cmd.Flags().Duration("shuffle-interval", _config.NodeConfig.ShuffleInterval, "Time between passive-view shuffles")
	cmd.Flags().Duration("fill-interval", _config.NodeConfig.FillInterval, "Time between active-view fill attempts")
	cmd.Flags().Duration("sync-interval", _config.NodeConfig.SyncInterval, "Time between active-view symmetry checks")

	// Broadcast tree
	cmd.Flags().Duration("ihave-delay", _config.NodeConfig.IHaveDelay, "How long announcements are batched")
	cmd.Flags().Duration("graft-timeout", _config.NodeConfig.GraftTimeout, "How long to wait before grafting a missing message")
	cmd.Flags().Duration("graft-retry", _config.NodeConfig.GraftRetry, "How long to wait before grafting the next announcer")
	cmd.Flags().Int("cache-size", _config.NodeConfig.CacheSize, "Number of messages kept in the cache")
	cmd.Flags().Duration("cache-ttl", _config.NodeConfig.CacheTTL, "How long messages are kept in the cache")

	// Interactive
	cmd.Flags().Bool("chat", false, "Publish lines read from stdin")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	_config.SetDataDir(_config.DataDir)

	_config.Logger().WithFields(logrus.Fields{
		"DataDir":       _config.DataDir,
		"BindAddr":      _config.BindAddr,
		"AdvertiseAddr": _config.AdvertiseAddr,
		"ServiceAddr":   _config.ServiceAddr,
		"NoService":     _config.NoService,
		"MaxPool":       _config.MaxPool,
		"LogLevel":      _config.LogLevel,
		"Moniker":       _config.Moniker,
		"TCPTimeout":    _config.TCPTimeout,
		"ActiveView":    _config.NodeConfig.ActiveViewSize,
		"PassiveView":   _config.NodeConfig.PassiveViewSize,
		"GraftTimeout":  _config.NodeConfig.GraftTimeout,
		"CacheSize":     _config.NodeConfig.CacheSize,
	}).Debug("RUN")

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

	// look for config file in [datadir]/treecast.toml (.json, .yaml also work)
	viper.SetConfigName("treecast")      // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
