package main

import (
	"context"
	"log"

	"camsync/internal/app"
)

func main() {
	application, err := app.NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
