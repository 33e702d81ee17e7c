package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mezonai/devnode/clock"
	"github.com/mezonai/devnode/config"
	"github.com/mezonai/devnode/devchain"
	"github.com/mezonai/devnode/events"
	"github.com/mezonai/devnode/exception"
	"github.com/mezonai/devnode/jsonrpc"
	"github.com/mezonai/devnode/logx"
	"github.com/mezonai/devnode/monitoring"
	"github.com/mezonai/devnode/ratelimit"
	"github.com/mezonai/devnode/snapshot"
	"github.com/mezonai/devnode/store"
)

type RunConfig struct {
	ConfigPath  string
	FeesPath    string
	ListenAddr  string
	MetricsAddr string
	StoreType   string
	DataDir     string
}

var runConfig RunConfig

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the development node",
	Long: `Starts the JSON-RPC server (evm_snapshot, evm_revert, evm_mine, ...) and the metrics endpoint.
Examples:
  # In-memory chain on :8545
  run

  # Persistent chain with a config file
  run -c ./node.yml --store leveldb -d ./node-data
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runNode(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfig.ConfigPath, "config", "c", "", "node config (yaml)")
	runCmd.Flags().StringVar(&runConfig.FeesPath, "fees", "", "fee and block limit config (ini)")
	runCmd.Flags().StringVarP(&runConfig.ListenAddr, "listen", "l", "", "JSON-RPC listen address")
	runCmd.Flags().StringVar(&runConfig.MetricsAddr, "metrics", "", "metrics listen address, \"off\" disables it")
	runCmd.Flags().StringVar(&runConfig.StoreType, "store", "", "store type: memory, leveldb, rocksdb, redis")
	runCmd.Flags().StringVarP(&runConfig.DataDir, "data-dir", "d", "", "store directory")
}

// loadNodeConfig applies command line overrides on top of the config file or the defaults
func loadNodeConfig(rc RunConfig) (*config.NodeConfig, error) {
	cfg := config.DefaultNodeConfig()
	if rc.ConfigPath != "" {
		loaded, err := config.LoadNodeConfig(rc.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if rc.ListenAddr != "" {
		cfg.ListenAddr = rc.ListenAddr
	}
	if rc.MetricsAddr != "" {
		cfg.MetricsAddr = rc.MetricsAddr
	}
	if rc.StoreType != "" {
		cfg.Store.Type = store.StoreType(rc.StoreType)
	}
	if rc.DataDir != "" {
		cfg.Store.Directory = rc.DataDir
	}
	return cfg, cfg.Validate()
}

func loadFeeConfig(path string) (*config.FeeConfig, error) {
	if path == "" {
		return config.DefaultFeeConfig(), nil
	}
	return config.LoadFeeConfig(path)
}

func runNode(ctx context.Context) error {
	cfg, err := loadNodeConfig(runConfig)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	feeCfg, err := loadFeeConfig(runConfig.FeesPath)
	if err != nil {
		return fmt.Errorf("failed to load fee configuration: %w", err)
	}
	feeConverter, err := feeCfg.Converter()
	if err != nil {
		return err
	}

	monitoring.InitMetrics()

	bs, err := store.CreateBlockStore(&cfg.Store)
	if err != nil {
		return err
	}
	defer bs.MustClose()

	baseFee, err := cfg.Genesis.BaseFeeValue()
	if err != nil {
		return err
	}
	genesisTime := cfg.Genesis.Timestamp
	if genesisTime == 0 {
		genesisTime = uint64(time.Now().Unix())
	}

	eventBus := events.NewEventBus()
	chain, err := devchain.Open(bs, clock.New(nil), devchain.Genesis{Timestamp: genesisTime, BaseFee: baseFee}, eventBus)
	if err != nil {
		return err
	}

	svc := snapshot.NewService(chain, chain,
		snapshot.WithClock(chain),
		snapshot.WithOverrides(chain),
		snapshot.WithLocker(chain.Locker()),
		snapshot.WithEventBus(eventBus),
	)

	rpcServer := jsonrpc.NewServer(cfg.ListenAddr, svc, chain, feeConverter)
	if len(cfg.RPC.CORSOrigins) > 0 {
		rpcServer.SetCORSConfig(jsonrpc.CORSConfig{
			AllowedOrigins: cfg.RPC.CORSOrigins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		})
	}
	if corsCfg, ok := jsonrpc.CORSFromEnv(); ok {
		rpcServer.SetCORSConfig(corsCfg)
	}
	if cfg.RPC.RateLimitPerMinute > 0 {
		limiter := ratelimit.NewRateLimiter(ratelimit.PerMinute(cfg.RPC.RateLimitPerMinute))
		defer limiter.Stop()
		rpcServer.SetRateLimiter(limiter)
	}

	logEvents(ctx, eventBus)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rpcServer.Serve(gctx)
	})
	if cfg.MetricsAddr != "" && cfg.MetricsAddr != "off" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr)
		})
	}

	logx.Info("CMD", fmt.Sprintf("Dev node started | rpc=%s | metrics=%s | store=%s", cfg.ListenAddr, cfg.MetricsAddr, cfg.Store.Type))
	err = g.Wait()
	logx.Info("CMD", "Dev node stopped")
	return err
}

// logEvents writes chain events to the log until ctx is done
func logEvents(ctx context.Context, eventBus *events.EventBus) {
	id, ch := eventBus.Subscribe()
	exception.SafeGo("EventLogger", func() {
		defer eventBus.Unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				switch e := ev.(type) {
				case *events.ChainReverted:
					logx.Info("EVENT", fmt.Sprintf("%s | head=%d | removed=%d", e.Type(), e.BlockNumber(), e.Removed()))
				case *events.SnapshotRestored:
					logx.Info("EVENT", fmt.Sprintf("%s | id=%d | height=%d | purged=%d", e.Type(), e.SnapshotID(), e.BlockNumber(), e.Purged()))
				default:
					logx.Debug("EVENT", fmt.Sprintf("%s | block=%d", ev.Type(), ev.BlockNumber()))
				}
			}
		}
	})
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	monitoring.RegisterMetrics(mux)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
