package main

// this file contains all the code that directly uses the viper package
import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jbrzusto/loadfifo/fpga"
	"github.com/jbrzusto/loadfifo/pci"
	"github.com/spf13/viper"
)

// Config holds the settings for a load.  Nothing in here is needed
// for normal use; the defaults match the FPGA build.
type Config struct {
	Device     string        `mapstructure:"device"`      // PCI vendor:device id
	Region     int           `mapstructure:"region"`      // index of the memory region holding the registers
	BaseAddr   uint32        `mapstructure:"base_addr"`   // offset of the FIFO loader block in the region
	WriteDelay time.Duration `mapstructure:"write_delay"` // pause after each word
	Sysfs      string        `mapstructure:"sysfs"`       // where to look for PCI devices
	LogLevel   string        `mapstructure:"log_level"`   // debug, info, warn or error
	Strict     bool          `mapstructure:"strict"`      // reject fields that aren't valid numbers
	DryRun     bool          `mapstructure:"dry_run"`     // log register writes instead of doing them
}

// configPaths are searched, in order, for the config file.
var configPaths = []string{"/opt", "."}

// loadConfig reads configuration from a file called 'loadfifo.toml'
// (or any other extension viper understands) in one of paths.
// Environment variables LOADFIFO_<KEY> override both the file and the
// defaults.  Returns true if a config file was read.
func loadConfig(paths ...string) (cfg Config, found bool, err error) {
	v := viper.New()
	v.SetConfigName("loadfifo") // name of config file (without extension)
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("loadfifo")
	v.AutomaticEnv()
	setDefaultConfig(v)

	err = v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, false, err
		}
	} else {
		found = true
	}
	err = v.Unmarshal(&cfg)
	return
}

// setDefaultConfig registers every key with its default value, which
// is also what lets environment variables override keys not in the
// config file.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("device", "10EE:903F")
	v.SetDefault("region", 0)
	v.SetDefault("base_addr", fpga.BASE_ADDR)
	v.SetDefault("write_delay", fpga.WRITE_DELAY)
	v.SetDefault("sysfs", pci.SYSFS_DEVICES)
	v.SetDefault("log_level", "warn")
	v.SetDefault("strict", false)
	v.SetDefault("dry_run", false)
}

// parseLevel converts a level name; unknown names give warn.
func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		l = slog.LevelWarn
	}
	return l
}

// newLogger returns a text logger on w at the named level.
func newLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

// newDryRunLogger returns the logger dry run reports writes on.  It
// shows info records whatever log_level says, so the writes always
// appear.
func newDryRunLogger(level string, w io.Writer) *slog.Logger {
	l := parseLevel(level)
	if l > slog.LevelInfo {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}
