package main

import (
	"fmt"
	"log"

	"golang-mq-duplex/internal/adapters/db/postgres"
	"golang-mq-duplex/internal/config"
)

func main() {
	conf := config.FromEnv()
	if conf.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	fmt.Println("Connecting to database...")

	journal, err := postgres.New(conf.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer journal.Close()

	fmt.Println("Running migrations...")

	if err := journal.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	fmt.Println("Migration complete: table dispatches is ready")
}
