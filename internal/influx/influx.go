// Package influx records telemetry into InfluxDB for time-series queries
// alongside the relational store.
package influx

import (
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Mithilesh5957/nidar/internal/config"
	"github.com/Mithilesh5957/nidar/internal/model"
)

// Recorder writes telemetry and battery events through the async write API.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *slog.Logger
}

// NewRecorder connects to InfluxDB using the influx.* config keys.
func NewRecorder(logger *slog.Logger) *Recorder {
	url := fmt.Sprintf("%s://%s:%s",
		config.GetString("influx.protocol"),
		config.GetString("influx.host"),
		config.GetString("influx.port"),
	)
	client := influxdb2.NewClient(url, config.GetString("influx.token"))
	writeAPI := client.WriteAPI(config.GetString("influx.org"), config.GetString("influx.bucket"))

	r := &Recorder{client: client, writeAPI: writeAPI, logger: logger}

	go func() {
		for err := range writeAPI.Errors() {
			logger.Warn("influx write failed", "error", err)
		}
	}()

	logger.Info("influx recorder ready", "url", url, "bucket", config.GetString("influx.bucket"))
	return r
}

// HandleEvent writes the measurable events. Registered as a dispatcher sink.
func (r *Recorder) HandleEvent(e model.Event) error {
	p := pointFor(e)
	if p == nil {
		return nil
	}
	r.writeAPI.WritePoint(p)
	return nil
}

// pointFor maps an event onto a line-protocol point, or nil when the event
// carries nothing measurable.
func pointFor(e model.Event) *write.Point {
	ts := time.UnixMilli(e.Ts)

	switch e.Topic {
	case model.TopicTelemetry:
		sample, ok := e.Payload.(model.TelemetrySample)
		if !ok {
			return nil
		}
		return influxdb2.NewPoint("telemetry",
			map[string]string{"vehicle": e.VehicleID},
			map[string]any{"lat": sample.Lat, "lon": sample.Lon, "alt": sample.Alt},
			ts,
		)

	case model.TopicBattery:
		b, ok := e.Payload.(model.BatteryPayload)
		if !ok {
			return nil
		}
		return influxdb2.NewPoint("battery",
			map[string]string{"vehicle": e.VehicleID},
			map[string]any{"remaining": int64(b.Remaining)},
			ts,
		)

	default:
		return nil
	}
}

// Close flushes pending writes and shuts the client down.
func (r *Recorder) Close() {
	r.writeAPI.Flush()
	r.client.Close()
}
