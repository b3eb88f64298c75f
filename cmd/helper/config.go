package main

import "time"

// ANSI color codes
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	Gray   = "\033[90m"
)

const (
	DefaultInterval  = 3 * time.Second
	HTTPTimeout      = 10 * time.Second
	HandshakeTimeout = 5 * time.Second
)

// API endpoints
const (
	WSPath             = "/ws"
	LocationUpdatePath = "/api/location/update"
	TripStatusPath     = "/api/location/status"
	StopTrackingPath   = "/api/location/%s"
)

type SimConfig struct {
	ServerURL string
	Token     string
	TripID    string
	Start     Location
	Heading   float64
	SpeedKmh  float64
	Interval  time.Duration
	Steps     int
	RESTOnly  bool
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
