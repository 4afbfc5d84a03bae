package statsstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/payperplay/hosting/internal/model"
	"github.com/payperplay/hosting/internal/nodestate"
	"github.com/payperplay/hosting/pkg/logging"
)

// TLSConfig names the mutual-TLS material for the stats stream (the
// node_stats config's nss type). The dial target is <hostname>:<Port> — the
// telemetry endpoint lives on the node itself, not a shared aggregator.
type TLSConfig struct {
	Port           int
	CACertPath     string
	ClientCertPath string
	ClientKeyPath  string
	TargetSNIName  string
}

func (c TLSConfig) build() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.ClientCertPath, c.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("statsstream: load client cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CACertPath)
	if err != nil {
		return nil, fmt.Errorf("statsstream: read ca cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("statsstream: no valid certs in %s", c.CACertPath)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ServerName:   c.TargetSNIName,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Streamer is one node's telemetry connection. It implements
// nodestate.StatsStreamer.
type Streamer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFactory returns a nodestate.StatsStreamFactory that opens a TLS stream
// per hostname against cfg.
func NewFactory(cfg TLSConfig, log *logging.Logger) nodestate.StatsStreamFactory {
	return func(hostname string, onSample func(model.NodeStats)) nodestate.StatsStreamer {
		ctx, cancel := context.WithCancel(context.Background())
		s := &Streamer{cancel: cancel, done: make(chan struct{})}
		go s.run(ctx, cfg, hostname, onSample, log)
		return s
	}
}

func (s *Streamer) Stop() {
	s.cancel()
	<-s.done
}

func (s *Streamer) run(ctx context.Context, cfg TLSConfig, hostname string, onSample func(model.NodeStats), log *logging.Logger) {
	defer close(s.done)
	if log == nil {
		log = logging.Default()
	}

	tlsConfig, err := cfg.build()
	if err != nil {
		log.Error("statsstream: tls config failed", err, map[string]any{"hostname": hostname})
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		address := fmt.Sprintf("%s:%d", hostname, cfg.Port)
		if err := s.streamOnce(ctx, address, tlsConfig, hostname, onSample); err != nil {
			log.Warn("statsstream: stream ended, reconnecting", map[string]any{
				"hostname": hostname, "err": err.Error(),
			})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(nodestate.ReconnectBackoff):
		}
	}
}

func (s *Streamer) streamOnce(ctx context.Context, address string, tlsConfig *tls.Config, hostname string, onSample func(model.NodeStats)) error {
	dialer := &tls.Dialer{Config: tlsConfig}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, txBps, rxBps, ts, err := decodeFrame(conn)
		if err != nil {
			return err
		}
		onSample(model.NodeStats{Hostname: hostname, TxBps: txBps, RxBps: rxBps, Timestamp: ts})
	}
}
