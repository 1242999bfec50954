package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klubi/hostel/internal/apiserver"
	"github.com/klubi/hostel/internal/config"
	"github.com/klubi/hostel/internal/controller"
	"github.com/klubi/hostel/internal/logging"
	"github.com/klubi/hostel/internal/metrics"
	"github.com/klubi/hostel/internal/scheduler"
	"github.com/klubi/hostel/internal/store"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

func newServeCmd() *cobra.Command {
	var (
		configFile   string
		port         int
		host         string
		dataDir      string
		storeType    string
		minScore     float64
		autoAllocate bool
		insecure     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the hostel server",
		Long: `Start the API server and the allocation controllers.

Settings come from the optional --config file, then HOSTEL_* environment
variables, then the flags below.`,
		Example: `  hostel serve
  hostel serve --config hostel-server.yaml
  hostel serve --store memory --auto-allocate --insecure`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("host") {
				cfg.Server.Host = host
			}
			if flags.Changed("data-dir") {
				cfg.Store.DataDir = dataDir
			}
			if flags.Changed("store") {
				cfg.Store.Type = storeType
			}
			if flags.Changed("min-score") {
				cfg.Allocation.MinScore = minScore
			}
			if flags.Changed("auto-allocate") {
				cfg.Allocation.AutoAllocate = autoAllocate
			}
			if flags.Changed("insecure") {
				cfg.Admin.Insecure = insecure
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.Log)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer logger.Sync()

			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			h := store.NewHostel(s)
			m := metrics.New()
			sched := scheduler.NewScheduler(h, scheduler.Options{
				MinScore:       cfg.Allocation.MinScore,
				EmptyRoomScore: cfg.Allocation.EmptyRoomScore,
			}, logger).WithMetrics(m)

			mgr := controller.NewManager(s, logger).WithMetrics(m)
			if cfg.Allocation.AutoAllocate {
				mgr.Register("AllocationController",
					controller.NewAllocationController(h, sched, logger),
					[]string{v1alpha1.KindStudent, v1alpha1.KindRoom})
			}
			occupancy := controller.NewOccupancyController(h, logger)
			mgr.RegisterWithResync("OccupancyController", occupancy,
				[]string{v1alpha1.KindAllocation, v1alpha1.KindRoom},
				controller.Resync{
					Interval: time.Duration(cfg.Allocation.ResyncInterval) * time.Second,
					Keys:     occupancy.RoomKeys,
				})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := mgr.Start(ctx); err != nil {
				return fmt.Errorf("starting controller manager: %w", err)
			}

			apiSrv := apiserver.NewServer(cfg.ServerAddress(), h, sched, m, cfg.Admin, logger)
			printBanner(cfg)

			errCh := make(chan error, 1)
			go func() {
				if err := apiSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			case err := <-errCh:
				logger.Error("API server error", zap.Error(err))
				cancel()
				mgr.Stop()
				return err
			}

			fmt.Println()
			logger.Info("shutting down gracefully...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			mgr.Stop()
			if err := apiSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("API server shutdown error", zap.Error(err))
			}
			cancel()

			logger.Info("hostel server stopped")
			return nil
		},
	}

	d := config.DefaultConfig()
	cmd.Flags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	cmd.Flags().IntVar(&port, "port", d.Server.Port, "API server port")
	cmd.Flags().StringVar(&host, "host", d.Server.Host, "API server host")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.hostel/data)")
	cmd.Flags().StringVar(&storeType, "store", d.Store.Type, "Store backend: bolt|memory")
	cmd.Flags().Float64Var(&minScore, "min-score", d.Allocation.MinScore, "Lowest room score a student may be placed at")
	cmd.Flags().BoolVar(&autoAllocate, "auto-allocate", false, "Allocate automatically when students or rooms change")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "Allow admin endpoints without a token")

	return cmd
}

// openStore opens the configured backend. The bolt backend creates its data
// directory on first use.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Type == "memory" {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(cfg.Store.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", cfg.Store.DataDir, err)
	}
	s, err := store.NewBoltStore(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", cfg.DBPath(), err)
	}
	return s, nil
}

func printBanner(cfg *config.Config) {
	color.New(color.FgCyan, color.Bold).Println("Hostel Allocation Server")
	fmt.Printf("   API Server:    http://%s\n", cfg.ServerAddress())
	if cfg.Store.Type == "memory" {
		fmt.Println("   Store:         memory (not persisted)")
	} else {
		fmt.Printf("   DB Path:       %s\n", cfg.DBPath())
	}
	fmt.Printf("   Min Score:     %.1f\n", cfg.Allocation.MinScore)
	auto := "off"
	if cfg.Allocation.AutoAllocate {
		auto = "on"
	}
	fmt.Printf("   Auto-allocate: %s\n", auto)
	if cfg.Admin.Token == "" {
		if cfg.Admin.Insecure {
			color.Yellow("   Admin endpoints are open (insecure mode)")
		} else {
			color.Yellow("   No admin token set; allocation runs and releases are refused")
		}
	}
	fmt.Println()
}
