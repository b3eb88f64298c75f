package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"bus-tracker/internal/config"
	locationservice "bus-tracker/internal/location-service"
	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/services"
	"bus-tracker/internal/mylogger"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: app <command> [flags]")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  location-service   run the real-time location service")
	fmt.Fprintln(os.Stderr, "  token              sign a development credential")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	switch os.Args[1] {
	case "location-service":
		appLogger, err := mylogger.New(cfg.Log.Level)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		appLogger.Action("location_service_started").Info("Location service starting up")

		if err := locationservice.Execute(context.Background(), appLogger, cfg); err != nil {
			os.Exit(1)
		}

	case "token":
		tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
		userID := tokenCmd.String("user", "", "user id to put in the user_id claim")
		role := tokenCmd.String("role", string(model.RoleDriver), "role claim (driver, student, admin)")
		ttl := tokenCmd.Duration("ttl", 24*time.Hour, "token lifetime")
		_ = tokenCmd.Parse(os.Args[2:])

		if *userID == "" || !model.Role(*role).Valid() {
			tokenCmd.Usage()
			os.Exit(2)
		}

		auth := services.NewAuthService(cfg.App.JwtSecret, cfg.App.JwtIssuer, cfg.App.JwtAudience, nil)
		token, err := auth.IssueToken(*userID, model.Role(*role), *ttl)
		if err != nil {
			log.Fatalf("Failed to sign token: %v", err)
		}
		fmt.Println(token)

	default:
		usage()
		os.Exit(1)
	}
}
