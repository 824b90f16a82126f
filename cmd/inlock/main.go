package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/inlock/fabric/pkg/config"
	"github.com/inlock/fabric/pkg/ledger"
	"github.com/inlock/fabric/pkg/log"
	"github.com/inlock/fabric/pkg/nfc"
	"github.com/inlock/fabric/pkg/orchestrator"
	"github.com/inlock/fabric/pkg/replica"
	"github.com/inlock/fabric/pkg/storage"
	"github.com/inlock/fabric/pkg/supervisor"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "inlock",
	Short: "InLock - replicated physical-asset tracking fabric",
	Long: `InLock tracks physical assets across a fleet of independent ledger
replicas. Each replica keeps an append-only DAG of asset events; an
orchestrator coordinates quorum registration, transfer and reads across
the fleet.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOut, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"InLock version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit JSON logs instead of console output")

	rootCmd.AddCommand(replicaCmd)
	rootCmd.AddCommand(orchestratorCmd)
	rootCmd.AddCommand(networkCmd)

	replicaCmd.Flags().Int("port", 5001, "Port to listen on")
	replicaCmd.Flags().String("storage", "blockchain_dag.json", "Path to the ledger snapshot file")
	replicaCmd.Flags().String("journal", "", "Path to the NFC scan journal (default: scan_journal.db next to the snapshot)")

	orchestratorCmd.Flags().String("listen", ":6000", "Address to listen on")
	orchestratorCmd.Flags().String("config", "", "Path to the fabric config file")

	networkCmd.Flags().String("config", "", "Path to the fabric config file")
	networkCmd.Flags().IntP("nodes", "n", 0, "Number of replicas to launch (overrides the config)")
}

var replicaCmd = &cobra.Command{
	Use:   "replica",
	Short: "Run a single ledger replica",
	Long: `Run one ledger replica: an append-only DAG of asset events persisted
to a snapshot file, exposed over the replica HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		storagePath, _ := cmd.Flags().GetString("storage")
		journalPath, _ := cmd.Flags().GetString("journal")

		store, err := storage.NewFileStore(storagePath)
		if err != nil {
			return fmt.Errorf("failed to open storage: %v", err)
		}

		if journalPath == "" {
			journalPath = filepath.Join(filepath.Dir(storagePath), "scan_journal.db")
		}
		journal, err := nfc.OpenJournal(journalPath)
		if err != nil {
			log.Logger.Warn().Err(err).Str("path", journalPath).Msg("scan journal unavailable, continuing without it")
			journal = nil
		} else {
			defer journal.Close()
		}

		svc := replica.NewService(ledger.New(store), journal)
		server := replica.NewServer(svc)

		addr := fmt.Sprintf(":%d", port)
		log.Logger.Info().Str("addr", addr).Str("storage", storagePath).Msg("replica starting")
		return serve(addr, server.Router())
	},
}

var orchestratorCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Run the quorum orchestrator",
	Long: `Run the orchestrator: the stateless coordinator that fans asset
operations out to the replica fleet and enforces quorum.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		cfgPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if listen != "" {
			cfg.OrchestratorAddr = listen
		}

		server := orchestrator.NewServer(orchestrator.New(cfg))
		log.Logger.Info().
			Str("addr", cfg.OrchestratorAddr).
			Int("replicas", len(cfg.Replicas)).
			Int("min_consensus", cfg.MinConsensus).
			Msg("orchestrator starting")
		return serve(cfg.OrchestratorAddr, server.Router())
	},
}

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Run a complete local fabric",
	Long: `Launch the full local fabric: one replica process per configured
port plus the orchestrator, supervised until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if nodes, _ := cmd.Flags().GetInt("nodes"); nodes > 0 {
			cfg.SetReplicaCount(nodes)
		}

		sup, err := supervisor.New(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return sup.Run(ctx)
	},
}

// serve runs an HTTP server until SIGINT or SIGTERM, then drains it.
func serve(addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
