// Package telemetry persists printer status history in InfluxDB.
package telemetry

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/turion/turionlink/core/printer"
	"github.com/turion/turionlink/infra/logger"
)

// Config defines the InfluxDB endpoint for status recording.
type Config struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Token   string `json:"token"`
	Org     string `json:"org"`
	Bucket  string `json:"bucket"`
}

// Recorder consumes status broadcasts.
type Recorder interface {
	RecordStatus(serial string, st printer.Status) error
	Close()
}

// NopRecorder discards all status frames.
type NopRecorder struct{}

func (NopRecorder) RecordStatus(string, printer.Status) error { return nil }
func (NopRecorder) Close()                                    {}

// InfluxRecorder writes status points using the official client.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxRecorder creates a recorder for the given endpoint.
func NewInfluxRecorder(cfg Config) *InfluxRecorder {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxRecorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("telemetry-recorder"),
	}
}

// NewRecorderWithFallback pings the InfluxDB instance and returns a
// NopRecorder when it is disabled or unhealthy, so a broken telemetry store
// never blocks printing.
func NewRecorderWithFallback(cfg Config) Recorder {
	if !cfg.Enabled {
		return NopRecorder{}
	}
	rec := NewInfluxRecorder(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := rec.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			rec.log.Errorf("influx health check error: %v", err)
		} else {
			rec.log.Errorf("influx health status: %s", health.Status)
		}
		rec.client.Close()
		return NopRecorder{}
	}
	return rec
}

// RecordStatus writes one push_status frame as a point. Fields the frame does
// not carry are omitted.
func (r *InfluxRecorder) RecordStatus(serial string, st printer.Status) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("printer_status").
		AddTag("serial", serial).
		SetTime(time.Now())
	if state := st.GcodeState(); state != "" {
		p.AddField("gcode_state", state)
	}
	if pct, ok := st.Percent(); ok {
		p.AddField("mc_percent", pct)
	}
	p.AddField("print_error", st.PrintError())
	return r.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying HTTP client.
func (r *InfluxRecorder) Close() { r.client.Close() }
