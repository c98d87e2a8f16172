package cmd

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/arbx/access"
	"github.com/michaelpento.lv/arbx/config"
	"github.com/michaelpento.lv/arbx/engine"
	"github.com/michaelpento.lv/arbx/executor"
	"github.com/michaelpento.lv/arbx/flashloan"
	"github.com/michaelpento.lv/arbx/flashloan/vault"
	"github.com/michaelpento.lv/arbx/gas"
	"github.com/michaelpento.lv/arbx/ledger"
	"github.com/michaelpento.lv/arbx/registry"
	"github.com/michaelpento.lv/arbx/risk"
	"github.com/michaelpento.lv/arbx/simulator"
	"github.com/michaelpento.lv/arbx/types"
	"github.com/michaelpento.lv/arbx/utils"
)

var strategiesFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the arbitrage engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()

		if err := config.LoadEnv(); err != nil {
			log.Debug("no .env file loaded", zap.Error(err))
		}
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Warn("falling back to default config", zap.Error(err))
			cfg = config.DefaultConfig()
		}
		config.ApplyEnvOverrides(cfg)

		stack, err := buildStack(cfg, log)
		if err != nil {
			return err
		}

		if strategiesFile != "" {
			strategies, err := config.LoadStrategies(strategiesFile)
			if err != nil {
				return err
			}
			for _, s := range strategies {
				if err := stack.engine.AddStrategy(stack.admin, s); err != nil {
					log.Warn("failed to register strategy", zap.String("strategy", s.ID), zap.Error(err))
				}
			}
		}

		if cfg.PrometheusEnabled {
			go serveMetrics(cfg.PrometheusEndpoint, stack, log)
		}

		go func() {
			for ev := range stack.sink.Events() {
				log.Info("event", zap.String("kind", string(ev.Kind)))
			}
		}()

		log.Info("engine started", zap.String("state", stack.engine.State().String()))

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("shutting down")
		return nil
	},
}

// stack bundles the wired components.
type stack struct {
	store       *ledger.Ledger
	auth        *access.Controller
	registry    *registry.AdapterRegistry
	coordinator *flashloan.Coordinator
	engine      *engine.Engine
	sink        *engine.ChanSink
	vault       *vault.Vault
	oracle      *gas.Oracle
	admin       common.Address
}

func buildStack(cfg *config.Config, log *zap.Logger) (*stack, error) {
	admin := common.HexToAddress(config.GetEnvWithDefault(config.EnvAdminAccount, cfg.AdminAccount))
	coordAccount := common.HexToAddress(cfg.CoordinatorAccount)
	recipient := common.HexToAddress(cfg.ProfitRecipient)
	if recipient == (common.Address{}) {
		recipient = admin
	}

	store := ledger.New()
	auth := access.NewController(admin)
	reg := registry.NewAdapterRegistry(auth, log)
	oracle := gas.NewOracle(cfg.MaxGasPrice, log)
	lender := vault.New("vault", common.HexToAddress("0x000000000000000000000000000000000000f1a5"), cfg.LoanPremiumBps, log)
	exec := executor.New(reg, log)
	guard := flashloan.NewProfitGuard(flashloan.GuardConfig{
		MinProfitBps: cfg.MinProfitBps,
		MaxGasPrice:  cfg.MaxGasPrice,
	}, oracle, log)
	coordinator := flashloan.NewCoordinator(store, reg, exec, lender, guard, auth, coordAccount, recipient, log)

	riskReg := risk.NewRegistry(types.RiskParams{
		MaxExposurePerToken: cfg.MaxExposure,
		MaxGasPrice:         cfg.MaxGasPrice,
		MinProfitThreshold:  cfg.MinProfitThreshold,
		MaxSlippageBps:      cfg.MaxSlippageBps,
	}, auth, log)

	sim, err := simulator.New(reg, log)
	if err != nil {
		return nil, err
	}

	sink := engine.NewChanSink(256)
	opts := engine.Options{Sink: sink}
	if cfg.RateLimit.Enabled {
		opts.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize)
	}
	eng := engine.New(store, coordinator, reg, riskReg, sim, lender, auth, log, opts)

	return &stack{
		store:       store,
		auth:        auth,
		registry:    reg,
		coordinator: coordinator,
		engine:      eng,
		sink:        sink,
		vault:       lender,
		oracle:      oracle,
		admin:       admin,
	}, nil
}

func serveMetrics(endpoint string, s *stack, log *zap.Logger) {
	registry := prometheus.NewRegistry()
	s.coordinator.MustRegister(registry)
	s.engine.MustRegister(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if endpoint == "" {
		endpoint = ":9090"
	}
	log.Info("serving metrics", zap.String("endpoint", endpoint))
	if err := http.ListenAndServe(endpoint, mux); err != nil {
		log.Error("metrics server stopped", zap.Error(err))
	}
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVar(&strategiesFile, "strategies", "", "strategy manifest (YAML)")
}
