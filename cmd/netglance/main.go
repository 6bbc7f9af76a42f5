package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/netglance/netglance/app"
	"github.com/netglance/netglance/share/config"
)

var appHelp = `
  Usage: netglance [options]

  Examples:

    ./netglance
    starts the monitor with the default one second polling interval,
    writing usage history to ./netglance.db

    ./netglance --interval 500ms --db /var/lib/netglance/usage.db
    polls twice a second and stores history under /var/lib/netglance

    ./netglance --adapter eth0 --show-virtual
    pins the reported speeds to eth0 and includes virtual adapters
    in listings

  Options:

    --db, Path of the sqlite database holding usage history.
    Defaults to "netglance.db" in the working directory.

    --interval, -i, Polling interval for all counters. Values below
    250ms or above 1m are clamped. Defaults to '1s'.

    --adapter, Adapter selection for the reported totals: an adapter
    id, "auto" for the primary adapter, or "" to aggregate over all
    adapters. Defaults to "auto".

    --show-virtual, Include VM and container adapters in adapter
    listings. VPN adapters are always listed. Defaults to false.

    --aggregation-interval, How often buffered resource samples are
    rolled up into hourly rows. Defaults to '5m'.

    --cleanup-interval, How often retention horizons are enforced.
    Defaults to '1h'.

    --verbose, -v, Specify log level. Values: "error", "info", "debug"
    (defaults to "error")

    --log-file, -l, Specifies log file path. (defaults to empty string:
    log printed to stdout)

    --config, -c, Optional path to a toml config file. Retention
    horizons (retention.network_days, retention.system_days,
    retention.app_days, retention.fine_grained_days; 0 keeps forever)
    are file-only settings.

    --help, This help text

    --version, Print version info and exit

`

var (
	RootCmd = &cobra.Command{
		Version: "0.1.0",
		Run:     runMain,
	}

	cfgPath  *string
	viperCfg *viper.Viper
	cfg      = &app.Config{}
)

func setPFlags(pFlags *pflag.FlagSet) {
	pFlags.String("db", "", "")
	pFlags.StringP("interval", "i", "", "")
	pFlags.String("adapter", "", "")
	pFlags.Bool("show-virtual", false, "")
	pFlags.String("aggregation-interval", "", "")
	pFlags.String("cleanup-interval", "", "")
	pFlags.StringP("log-file", "l", "", "")
	pFlags.StringP("verbose", "v", "", "")
}

func bindPFlagsToViperConfig(pFlags *pflag.FlagSet, viperCfg *viper.Viper) {
	// map config fields to CLI args:
	_ = viperCfg.BindPFlag("db_path", pFlags.Lookup("db"))
	_ = viperCfg.BindPFlag("log_file", pFlags.Lookup("log-file"))
	_ = viperCfg.BindPFlag("log_level", pFlags.Lookup("verbose"))
	_ = viperCfg.BindPFlag("monitoring.interval", pFlags.Lookup("interval"))
	_ = viperCfg.BindPFlag("monitoring.adapter", pFlags.Lookup("adapter"))
	_ = viperCfg.BindPFlag("monitoring.show_virtual", pFlags.Lookup("show-virtual"))
	_ = viperCfg.BindPFlag("rollup.aggregation_interval", pFlags.Lookup("aggregation-interval"))
	_ = viperCfg.BindPFlag("rollup.cleanup_interval", pFlags.Lookup("cleanup-interval"))
}

func init() {
	pFlags := RootCmd.PersistentFlags()
	setPFlags(pFlags)

	cfgPath = pFlags.StringP("config", "c", "", "")

	RootCmd.SetUsageFunc(func(*cobra.Command) error {
		fmt.Print(appHelp)
		os.Exit(1)
		return nil
	})

	viperCfg = viper.New()
	viperCfg.SetConfigType("toml")

	viperCfg.SetDefault("log_level", "error")
	viperCfg.SetDefault("monitoring.adapter", "auto")

	bindPFlagsToViperConfig(pFlags, viperCfg)

	// map ENV variables
	_ = viperCfg.BindEnv("db_path", "NETGLANCE_DB")
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func tryDecodeConfig() error {
	if *cfgPath != "" {
		viperCfg.SetConfigFile(*cfgPath)
	} else {
		viperCfg.AddConfigPath(".")
		viperCfg.SetConfigName("netglance.conf")
	}

	return config.DecodeViperConfig(viperCfg, cfg)
}

func runMain(*cobra.Command, []string) {
	err := tryDecodeConfig()
	if err != nil {
		log.Fatal(err)
	}

	err = cfg.ParseAndValidate()
	if err != nil {
		log.Fatal(err)
	}

	err = cfg.LogOutput.Start()
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		cfg.LogOutput.Shutdown()
	}()

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = a.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
