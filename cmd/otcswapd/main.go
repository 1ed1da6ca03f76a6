package main

import (
	"flag"
	"log/slog"
	"os"

	"otcswap/config"
	"otcswap/core/events"
	coretypes "otcswap/core/types"
	"otcswap/native/offer"
	"otcswap/observability/logging"
	"otcswap/rpc"
	"otcswap/state"
	"otcswap/storage"
)

// logEmitter forwards engine events to the structured logger.
type logEmitter struct {
	log *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	args := []any{"event", evt.EventType()}
	if payload, ok := evt.(interface{ Event() *coretypes.Event }); ok {
		if inner := payload.Event(); inner != nil {
			for key, value := range inner.Attributes {
				args = append(args, key, value)
			}
		}
	}
	l.log.Info("offer event", args...)
}

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger := logging.Setup("otcswapd", cfg.Network, cfg.LogFile)

	var db storage.Database
	if cfg.EphemeralStorage() {
		db = storage.NewMemDB()
		logger.Warn("in-memory storage selected, state will not survive restarts")
	} else {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("failed to open database", "dataDir", cfg.DataDir, "error", err)
			os.Exit(1)
		}
		db = ldb
	}
	defer db.Close()

	st, err := state.Open(db)
	if err != nil {
		logger.Error("failed to load state", "error", err)
		os.Exit(1)
	}

	engine := offer.NewEngine()
	engine.SetState(st)
	engine.SetEmitter(logEmitter{log: logger})
	engine.SetMaxChainDepth(cfg.MaxCounterDepth)

	query := offer.NewQueryService(st)

	server := rpc.NewServer(engine, query, logger)
	server.SetAllowClientTimestamps(cfg.AllowClientTimestamps)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}
