package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// Simulates one bus driver streaming positions to the location service.
func main() {
	cfg := SimConfig{}
	flag.StringVar(&cfg.ServerURL, "server", "http://localhost:3001", "location service base URL")
	flag.StringVar(&cfg.Token, "token", "", "driver bearer token (see `app token`)")
	flag.StringVar(&cfg.TripID, "trip", "", "trip id owned by the driver")
	flag.Float64Var(&cfg.Start.Latitude, "lat", 23.7800, "start latitude")
	flag.Float64Var(&cfg.Start.Longitude, "lon", 90.4000, "start longitude")
	flag.Float64Var(&cfg.Heading, "heading", 45, "direction of travel in degrees")
	flag.Float64Var(&cfg.SpeedKmh, "speed", 30, "cruising speed in km/h")
	flag.DurationVar(&cfg.Interval, "interval", DefaultInterval, "time between reports")
	flag.IntVar(&cfg.Steps, "steps", 0, "number of reports, 0 runs until interrupted")
	flag.BoolVar(&cfg.RESTOnly, "rest", false, "report over REST only")
	flag.Parse()

	logger := &Logger{}
	if cfg.Token == "" || cfg.TripID == "" {
		log.Fatal("token and trip are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver := NewDriverService(ctx, cfg, logger)
	driver.Connect()

	logger.Info("simulating trip %s from %.5f,%.5f heading %.0f at %.0f km/h",
		cfg.TripID, cfg.Start.Latitude, cfg.Start.Longitude, cfg.Heading, cfg.SpeedKmh)
	if err := driver.Run(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
