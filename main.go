package main

import (
	"github.com/wfunc/boardrelay/config"
	"github.com/wfunc/boardrelay/logger"
	"github.com/wfunc/boardrelay/monitor"
	"github.com/wfunc/boardrelay/persistence"
	"github.com/wfunc/boardrelay/server"
	"github.com/wfunc/boardrelay/services"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Optional match-record archive; room state itself is memory-only.
	var db persistence.Database
	if pg := cfg.Database.Postgres; pg.Enabled {
		switch pg.Driver {
		case "sql":
			db, err = persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		default:
			db, err = persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		}
		if err != nil {
			logger.Log.Fatalf("Failed to connect to database: %v", err)
		}
		logger.Log.Info("Match-record archive enabled.")
	}
	recorder := services.NewMatchRecorder(db)

	// Initialize Relay Server
	mon := monitor.NewMonitor("boardrelay")
	relayServer := server.NewRelayServer(
		cfg.Server.HTTPAddress,
		cfg.Server.RPCAddress,
		cfg.Relay.PresenceInterval,
		recorder,
		mon,
	)

	// Metrics plus the diagnostic endpoints (/metrics, /healthz, /rooms)
	mon.StartServer(cfg.Server.MetricsAddress, relayServer.Rooms())

	// Start Server
	logger.Log.Infof("Starting relay server on %s", cfg.Server.HTTPAddress)
	if err := relayServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
