// Legator governance demo agent — a minimal harness that seals a persona,
// loads a constraint profile, and executes one task through the full
// governance pipeline before exiting.
//
// Usage:
//
//	legator-agent -task "read the README and summarize it"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/legator/governance-kernel/internal/agent"
	"github.com/legator/governance-kernel/internal/governance/types"
	"github.com/legator/governance-kernel/internal/governance/violationtracker"
	"github.com/legator/governance-kernel/internal/harnessconfig"
	"github.com/legator/governance-kernel/internal/metrics"
	"github.com/legator/governance-kernel/internal/sweep"
	"github.com/legator/governance-kernel/internal/telemetry"
	"github.com/legator/governance-kernel/internal/violationstore"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	var (
		task        = flag.String("task", "", "task text to submit to the governed agent")
		agentID     = flag.String("agent-id", "demo-agent-001", "persona agent id")
		agentType   = flag.String("agent-type", string(types.AgentCoding), "persona agent type")
		configPath  = flag.String("config", "", "path to a harness config file")
		metricsAddr = flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	)
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := zapr.NewLogger(logger)

	cfg, err := harnessconfig.Load(*configPath)
	if err != nil {
		logger.Fatal("load harness config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTraceProvider(ctx, cfg.OTLPEndpoint, version)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	var indexer violationtracker.Indexer
	if cfg.ViolationIndexPath != "" {
		store, err := violationstore.Open(cfg.ViolationIndexPath)
		if err != nil {
			logger.Fatal("open violation index", zap.Error(err))
		}
		defer store.Close()
		indexer = store
	}

	governed, err := agent.Create(agent.Config{
		AgentID:        *agentID,
		AgentType:      types.AgentType(*agentType),
		Capabilities:   types.AgentCapabilities[types.AgentType(*agentType)],
		GovernanceDir:  cfg.GovernanceDir,
		ProfileName:    cfg.ProfileName,
		ViolationDir:   cfg.ViolationDir,
		ViolationIndex: indexer,
		AuditLogPath:   cfg.AuditLogPath,
		Mode:           cfg.Mode,
	})
	if err != nil {
		logger.Fatal("create governed agent", zap.Error(err))
	}
	defer governed.Close()

	integritySweep, err := sweep.New(governed, "@every 5m",
		sweep.WithProfileRecheck(cfg.GovernanceDir, cfg.ProfileName),
		sweep.WithLogger(log),
	)
	if err != nil {
		logger.Fatal("create integrity sweep", zap.Error(err))
	}
	integritySweep.Start(ctx)
	defer integritySweep.Stop()

	if *task == "" {
		logger.Info("no -task given, idling until signalled",
			zap.String("version", version), zap.String("commit", commit))
		<-ctx.Done()
		return
	}

	result := governed.ExecuteTask(ctx, *task)
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if result.Status == types.Blocked {
		os.Exit(1)
	}
}
