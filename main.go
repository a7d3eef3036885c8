package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"gattscope.dev/internal/app"
	"gattscope.dev/internal/ble"
	"gattscope.dev/internal/bluez"
	"gattscope.dev/internal/config"
	"gattscope.dev/internal/logging"
	"gattscope.dev/internal/profile"
)

var (
	flagDemo    bool
	flagAdapter string
	flagConfig  string
	flagLogFile string
	flagClassic bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gattscope",
		Short: "Terminal BLE scanner and GATT explorer",
		Long: `gattscope scans for Bluetooth Low Energy peripherals, connects to one
and walks its GATT database: services, characteristics, descriptors,
values and live notifications, all in the terminal.

Requires sudo or CAP_NET_ADMIN capability for real Bluetooth scanning.
Use --demo flag for demonstration mode without Bluetooth hardware.`,
		RunE: run,
	}

	rootCmd.PersistentFlags().BoolVar(&flagDemo, "demo", false, "Run against a built-in fake world (no Bluetooth required)")
	rootCmd.PersistentFlags().StringVar(&flagAdapter, "adapter", "hci0", "Bluetooth adapter to use")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default ~/.config/gattscope/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Log file path (the terminal belongs to the UI)")
	rootCmd.Flags().BoolVar(&flagClassic, "classic", false, "Also list classic Bluetooth devices via hcitool inquiry")

	rootCmd.AddCommand(newInspectCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges the config file with the command line. Flags set
// explicitly win over the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if flagConfig != "" {
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return nil, err
		}
	} else if path := config.DefaultConfigPath(); fileExists(path) {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	flags := cmd.Flags()
	if flags.Changed("adapter") {
		cfg.Adapter = flagAdapter
	}
	if flags.Changed("log-file") {
		cfg.Log.File = flagLogFile
	}
	if flags.Changed("classic") {
		cfg.Classic = flagClassic
	}
	if flagDemo {
		cfg.Demo = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func buildBackend(cfg *config.Config) ble.Backend {
	if cfg.Demo {
		return ble.NewDemoBackend()
	}
	return ble.NewTinygoBackend(cfg.Adapter)
}

// enableBackend initializes the adapter and explains the usual cause
// when that fails on real hardware.
func enableBackend(backend ble.Backend, demo bool) error {
	err := backend.Enable()
	if err == nil {
		return nil
	}
	if !demo {
		fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
		fmt.Fprintln(os.Stderr, "Bluetooth access usually needs elevated permissions.")
		fmt.Fprintln(os.Stderr, "Try one of:")
		fmt.Fprintln(os.Stderr, "  sudo ./gattscope")
		fmt.Fprintln(os.Stderr, "  sudo setcap cap_net_admin+ep ./gattscope")
		fmt.Fprintln(os.Stderr, "  ./gattscope --demo    (demo mode, no hardware needed)")
	}
	return err
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	closer := logging.Setup(cfg.Log.Level, cfg.Log.File)
	defer closer.Close()

	if !cfg.Demo {
		if powered, perr := bluez.AdapterPowered(cfg.Adapter); perr == nil && !powered {
			fmt.Fprintf(os.Stderr, "warning: adapter %s is powered off\n", cfg.Adapter)
			logging.Component("main").WithField("adapter", cfg.Adapter).Warn("adapter is powered off")
		}
	}

	backend := buildBackend(cfg)
	if err := enableBackend(backend, cfg.Demo); err != nil {
		return err
	}

	client := ble.NewClient(backend, time.Duration(cfg.Connect.TimeoutSeconds)*time.Second)

	var cache *profile.Cache
	if cfg.Cache.Enabled {
		cache = profile.NewCache(cfg.Cache.Path)
	}

	model := app.New(cfg, backend, client, cache, cfg.Demo)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithFPS(config.TargetFPS),
	)

	// Start scanners with reference to the tea program
	model.StartScanners(p)

	_, err = p.Run()
	return err
}
