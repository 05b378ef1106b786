package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/treecast/treecast/src/common"
	"github.com/treecast/treecast/src/node"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultContactsFile is the default name of the file listing known
	// cluster contacts.
	DefaultContactsFile = "contacts.json"
)

// Default configuration values.
const (
	DefaultLogLevel    = "debug"
	DefaultBindAddr    = "127.0.0.1:1337"
	DefaultServiceAddr = "127.0.0.1:8000"
	DefaultTCPTimeout  = 1000 * time.Millisecond
	DefaultMaxPool     = 2
)

// Config contains all the configuration properties of a treecast process.
type Config struct {
	// DataDir is the top-level directory containing treecast configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, mirrors the log output to this file in addition to
	// stderr.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where this node listens for gossip
	// from other nodes. In some cases, there may be a routable address that
	// cannot be bound. Use AdvertiseAddr to advertise a different address to
	// support this. If this address is not routable, the node will be in a
	// constant flapping state as other nodes will treat the non-routability
	// as a failure.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service. If not
	// specified, and "no-service" is not set, the API handlers are registered
	// with the DefaultServerMux of the http package. It is possible that
	// another server in the same process is simultaneously using the
	// DefaultServerMux. In which case, the handlers will be accessible from
	// both servers. This is usefull when treecast is used in-memory and
	// expected to use the same endpoint (address:port) as the application's
	// API.
	ServiceAddr string `mapstructure:"service-listen"`

	// MaxPool controls how many connections are pooled per target in the
	// gossip routines.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of outbound gossip connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// Moniker defines the friendly name of this node.
	Moniker string `mapstructure:"moniker"`

	// NodeConfig carries the protocol tunables down to the node.
	NodeConfig node.Config `mapstructure:",squash"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:     DefaultDataDir(),
		LogLevel:    DefaultLogLevel,
		BindAddr:    DefaultBindAddr,
		ServiceAddr: DefaultServiceAddr,
		TCPTimeout:  DefaultTCPTimeout,
		MaxPool:     DefaultMaxPool,
		NodeConfig:  *node.DefaultConfig(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level treecast directory.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
}

// ContactsFile returns the full path of the file listing cluster contacts.
func (c *Config) ContactsFile() string {
	return filepath.Join(c.DataDir, DefaultContactsFile)
}

// Logger returns the process logger, building it on first use. The logger
// writes formatted text to stderr and, when LogFile is set, mirrors every
// level to that file.
func (c *Config) Logger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			_, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY, 0666)
			if err != nil {
				c.logger.WithField("file", c.LogFile).Warn("Failed to open log file, using stderr only")
			} else {
				pathMap := lfshook.PathMap{}
				for _, level := range logrus.AllLevels {
					if level <= c.logger.Level {
						pathMap[level] = c.LogFile
					}
				}
				c.logger.Hooks.Add(lfshook.NewHook(
					pathMap,
					&logrus.TextFormatter{},
				))
			}
		}
	}
	return c.logger
}

// DefaultDataDir return the default directory name for top-level treecast
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Treecast")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Treecast")
		} else {
			return filepath.Join(home, ".treecast")
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
