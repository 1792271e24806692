// Legator MCP governance facade — seals a persona, loads a constraint
// profile, and exposes ExecuteTask/GetViolations/VerifyPersonaIntegrity as
// MCP tools over HTTP/SSE, so any MCP client can drive a governed agent
// without bypassing the constraint profile.
package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/go-logr/zapr"

	"github.com/legator/governance-kernel/internal/agent"
	"github.com/legator/governance-kernel/internal/governance/types"
	"github.com/legator/governance-kernel/internal/governance/violationtracker"
	"github.com/legator/governance-kernel/internal/harnessconfig"
	"github.com/legator/governance-kernel/internal/mcpgovernance"
	"github.com/legator/governance-kernel/internal/violationstore"
)

func main() {
	var (
		agentID    = flag.String("agent-id", "mcp-agent-001", "persona agent id")
		agentType  = flag.String("agent-type", string(types.AgentCoding), "persona agent type")
		configPath = flag.String("config", "", "path to a harness config file")
		listenAddr = flag.String("listen", ":8090", "address the MCP facade listens on")
	)
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := zapr.NewLogger(logger)

	cfg, err := harnessconfig.Load(*configPath)
	if err != nil {
		logger.Fatal("load harness config", zap.Error(err))
	}
	if *listenAddr == "" {
		*listenAddr = cfg.MCPListenAddr
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

	mcpServer := mcpgovernance.New(governed, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              *listenAddr,
		Handler:           mcpServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting legator MCP governance facade", zap.String("addr", *listenAddr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
