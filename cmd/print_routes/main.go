package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/vikasavnish/savepad/internal/api"
	"github.com/vikasavnish/savepad/internal/config"
	"github.com/vikasavnish/savepad/internal/db"
	"github.com/vikasavnish/savepad/internal/logger"
)

// Prints the route table of the server without starting it.
func main() {
	logger.Setup("dev", "warn")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Set up a throwaway database so the router can be built offline
	database, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: "file:routes?mode=memory&cache=shared"})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open in-memory database")
	}

	router := api.SetupRouter(api.Dependencies{DB: database}, cfg)
	api.PrintRoutes(os.Stdout, router)
}
