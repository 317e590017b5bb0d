package main

import (
	"github.com/Theras-Labs/card-server-evm/auth"
	"github.com/Theras-Labs/card-server-evm/config"
	"github.com/Theras-Labs/card-server-evm/escrow"
	"github.com/Theras-Labs/card-server-evm/logger"
	"github.com/Theras-Labs/card-server-evm/monitor"
	"github.com/Theras-Labs/card-server-evm/persistence"
	"github.com/Theras-Labs/card-server-evm/registry"
	"github.com/Theras-Labs/card-server-evm/server"
	"github.com/Theras-Labs/card-server-evm/services"
)

func main() {
	// Initialize logger
	logger.Init()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	var db persistence.Database
	switch cfg.Database.Driver {
	case "postgres":
		db, err = persistence.NewPostgreSQL(
			cfg.Database.Postgres.Host,
			cfg.Database.Postgres.Port,
			cfg.Database.Postgres.User,
			cfg.Database.Postgres.Password,
			cfg.Database.Postgres.DBName,
		)
	default:
		db, err = persistence.NewGormPostgreSQL(
			cfg.Database.Postgres.Host,
			cfg.Database.Postgres.Port,
			cfg.Database.Postgres.User,
			cfg.Database.Postgres.Password,
			cfg.Database.Postgres.DBName,
		)
	}
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Log.Info("Database connection successful.")

	mon := monitor.NewMonitor("boltis")
	mon.StartServer(cfg.Server.MetricsAddress)

	// Initialize Match Registry
	reg, err := registry.New(registry.Config{
		Owner:          cfg.Game.Owner,
		FeeRecipient:   cfg.Game.FeeRecipient,
		FeeBasisPoints: cfg.Game.FeeBasisPoints,
		Treasury:       escrow.NewBank(),
		Authorizer:     auth.NewDelegateRegistry(),
		Store:          db,
		Monitor:        mon,
	})
	if err != nil {
		logger.Log.Fatalf("Failed to create match registry: %v", err)
	}

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg, reg, services.NewStatsService(db), mon)

	// Start Server
	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
