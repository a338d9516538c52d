package main

import (
	"log"

	"github.com/tokengate/tokengate/internal/bootstrap"
	"github.com/tokengate/tokengate/internal/config"
)

func main() {
	cfg := config.Load()
	if err := bootstrap.Run(cfg); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
}
