// Package telemetrysink is the optional historical sink for the bandwidth
// samples the stats streamer receives: the scaler's in-memory lastStats
// remains the only thing the reconciliation loop reads, this is purely a
// side channel for operators to chart tx/rx outside the process lifetime.
package telemetrysink

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/payperplay/hosting/internal/model"
)

// Config names the InfluxDB connection
// (telemetry.influxdb.{url,token,org,bucket}).
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxDB writes every NodeStats sample as a time-series point.
type InfluxDB struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

func New(cfg Config) (*InfluxDB, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("telemetrysink: connect to influxdb: %w", err)
	}
	if health.Status != "pass" {
		return nil, fmt.Errorf("telemetrysink: influxdb health check failed: %s", health.Message)
	}

	return &InfluxDB{client: client, writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket)}, nil
}

// WriteSample records one bandwidth sample. Non-blocking: the client-side
// write API batches and flushes asynchronously, so a slow or unreachable
// InfluxDB never stalls the stats streamer.
func (s *InfluxDB) WriteSample(group string, sample model.NodeStats) {
	p := influxdb2.NewPoint(
		"node_bandwidth",
		map[string]string{
			"hostname": sample.Hostname,
			"group":    group,
		},
		map[string]any{
			"tx_bps": sample.TxBps,
			"rx_bps": sample.RxBps,
		},
		sample.Timestamp,
	)
	s.writeAPI.WritePoint(p)
}

func (s *InfluxDB) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}
