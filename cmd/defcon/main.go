// Command defcon drives a DEFCON level annunciator: status lights, a blinker,
// a beeper and a relay clicker on Raspberry Pi GPIO lines, controlled from a
// web page and MQTT.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sweeney/defcon/internal/config"
	"github.com/sweeney/defcon/internal/logger"
)

// flags holds command-line overrides of the config file.
type flags struct {
	configPath string
	broker     string
	logLevel   string
	httpAddr   string
	dryRun     bool
	redis      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "defcon",
		Short: "Run the DEFCON level annunciator.",
		Long: `Runs the annunciator daemon. The current level (0 is maximum alert, 9 is off)
is shown on the output lines and can be changed from the web page, over MQTT
or with the set and reason subcommands.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f.bindPersistent(root.PersistentFlags())
	f.bindDaemon(root.Flags())

	root.AddCommand(newSetCmd(f), newReasonCmd(f), newPrintConfigCmd(f))
	return root
}

func (f *flags) bindPersistent(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", fmt.Sprintf("path to YAML config (default %s if present)", config.DefaultFilename))
	fs.StringVar(&f.broker, "broker", "", "MQTT broker address (empty in config disables MQTT)")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
}

func (f *flags) bindDaemon(fs *pflag.FlagSet) {
	fs.StringVar(&f.httpAddr, "http", "", `HTTP address for the control page ("off" disables)`)
	fs.BoolVar(&f.dryRun, "dry-run", false, "log output changes instead of driving GPIO")
	fs.StringVar(&f.redis, "redis", "", "Redis address for the level stream")
}

// loadConfig reads the config file and applies any flags that were set.
func loadConfig(cmd *cobra.Command, f *flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}

	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("broker") {
		cfg.MQTT.Broker = f.broker
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("http") {
		cfg.HTTP.Addr = f.httpAddr
		if f.httpAddr == "off" {
			cfg.HTTP.Addr = ""
		}
	}
	if changed("dry-run") {
		cfg.GPIO.DryRun = f.dryRun
	}
	if changed("redis") {
		cfg.Redis.Addr = f.redis
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}

	lvl, _ := logger.ParseLogLevel(cfg.Log.Level)
	logger.SetLevel(lvl)
	return cfg, nil
}
