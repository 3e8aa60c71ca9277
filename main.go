package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chatintent/internal/api"
	"chatintent/internal/config"
	"chatintent/internal/container"
	"chatintent/internal/telemetry"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	bundleDir := flag.String("bundle", "", "Model bundle directory (default inference.bundle_dir)")
	flag.Parse()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *bundleDir == "" {
		*bundleDir = appConfig.Inference.BundleDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	defer appContainer.Close()

	shutdownTracer, err := telemetry.InitTracer(appConfig.Telemetry, appContainer.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer shutdownTracer(context.Background())

	if err := appContainer.InitWithDatabase(ctx); err != nil {
		log.Fatalf("Failed to open run registry: %v", err)
	}
	if err := appContainer.InitClassification(ctx, *bundleDir); err != nil {
		log.Fatalf("Failed to initialize classification: %v", err)
	}

	server := api.NewServer(appContainer.Classification, appContainer.RunRepo, appContainer.Logger)
	log.Printf("🚀 Intent classification API on :%s", appConfig.Server.Port)
	if err := server.Start(ctx, appConfig.Server.Port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
