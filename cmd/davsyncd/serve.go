package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meridianlabs/davsync/pkg/api"
	"github.com/meridianlabs/davsync/pkg/config"
	"github.com/meridianlabs/davsync/pkg/log"
	"github.com/meridianlabs/davsync/pkg/metrics"
	"github.com/meridianlabs/davsync/pkg/service"
	"github.com/meridianlabs/davsync/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the davsyncd daemon",
	Long: `Run the daemon: open the store, start the Service Facade, and serve
the HTTP status API (accounts, resources, sync, metrics and health
endpoints) until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dir, _ := cmd.Flags().GetString("data-dir"); cmd.Flags().Changed("data-dir") {
			cfg.Directory = dir
		}
		if addr, _ := cmd.Flags().GetString("listen-address"); addr != "" {
			cfg.ListenAddress = addr
		}
		// the config file's logging settings apply unless the flag was given.
		level, _ := cmd.Flags().GetString("log-level")
		asJSON, _ := cmd.Flags().GetBool("log-json")
		if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
			level = cfg.LogLevel
		}
		if !cmd.Flags().Changed("log-json") {
			asJSON = cfg.LogJSON
		}
		log.Init(log.Config{Level: log.Level(level), JSONOutput: asJSON})

		logger := log.WithComponent("davsyncd")

		s := store.NewBoltStore(cfg.Directory)
		if err := s.Open(); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()
		metrics.RegisterComponent("store", true, "open")

		facade := service.New(service.Config{
			Store:                  s,
			ClientFactory:          fakeClientFactory(),
			BundleIdentifier:       cfg.BundleIdentifier,
			MaxConcurrentDownloads: cfg.MaxConcurrentDownloads,
		})
		facade.Start()
		defer facade.Stop()
		metrics.RegisterComponent("facade", true, "started")

		if err := seedAccounts(facade, cfg.Accounts); err != nil {
			return fmt.Errorf("seed accounts from config: %w", err)
		}

		collector := metrics.NewCollector(s)
		collector.Start()
		defer collector.Stop()

		sub := facade.Events().Subscribe()
		defer facade.Events().Unsubscribe(sub)
		go func() {
			for e := range sub {
				logger.Info().Str("type", string(e.Type)).Str("account", string(e.Account.ID)).Msg("event")
			}
		}()

		srv := api.NewServer(facade)
		metrics.RegisterComponent("api", true, "ready")

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(cfg.ListenAddress); err != nil {
				errCh <- fmt.Errorf("api server: %w", err)
			}
		}()
		logger.Info().Str("address", cfg.ListenAddress).Msg("davsyncd listening")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Info().Msg("shutting down")
		case err := <-errCh:
			logger.Error().Err(err).Msg("serving failed")
			return err
		}
		return nil
	},
}

func seedAccounts(facade *service.Facade, accounts []config.AccountConfig) error {
	existing, err := facade.Accounts()
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[a.BaseURL+"|"+a.Username] = true
	}
	for _, a := range accounts {
		if seen[a.BaseURL+"|"+a.Username] {
			continue
		}
		if _, err := facade.AddAccount(a.BaseURL, a.Username, a.Label); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a davsyncd.yaml config file")
	serveCmd.Flags().String("listen-address", "", "Override the config file's listenAddress")
}
