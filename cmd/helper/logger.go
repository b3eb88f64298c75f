package main

import (
	"encoding/json"
	"log"

	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"
)

// Logger prints one colored, tagged line per simulator event.
type Logger struct{}

func (l *Logger) Info(msg string, args ...interface{}) {
	log.Printf(Green+"[INFO] "+Reset+msg, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	log.Printf(Yellow+"[WARN] "+Reset+msg, args...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	log.Printf(Red+"[ERROR] "+Reset+msg, args...)
}

func (l *Logger) WebSocket(msg string, args ...interface{}) {
	log.Printf(Cyan+"[WS] "+Reset+msg, args...)
}

func (l *Logger) HTTP(msg string, args ...interface{}) {
	log.Printf(Gray+"[HTTP] "+Reset+msg, args...)
}

// Sim logs a position the simulated bus is about to report.
func (l *Logger) Sim(step int64, lat, lon, speed float64, via string) {
	log.Printf(Blue+"[SIM] "+Reset+"#%d %.5f,%.5f %.1f km/h via %s", step, lat, lon, speed, via)
}

// Ack logs a server acknowledgement, or the raw payload when it does not
// decode as one.
func (l *Logger) Ack(eventType string, data json.RawMessage) {
	var ack websocketdto.Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		log.Printf(Cyan+"[ACK] "+Reset+"%s %s", eventType, string(data))
		return
	}
	mark := Green + "ok" + Reset
	if !ack.Success {
		mark = Red + "rejected" + Reset
	}
	log.Printf(Cyan+"[ACK] "+Reset+"%s %s %q at %s", eventType, mark, ack.Message, ack.Timestamp.Format("15:04:05"))
}

// Alert logs an emergency broadcast seen on the socket.
func (l *Logger) Alert(eventType string, data json.RawMessage) {
	log.Printf(Purple+"[ALERT] "+Reset+"%s %s", eventType, string(data))
}
