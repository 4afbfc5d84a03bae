package statsstream

import (
	"encoding/json"
	"os"
	"time"

	"github.com/payperplay/hosting/internal/model"
	"github.com/payperplay/hosting/internal/nodestate"
)

// fileStreamer polls a JSON fixture file for one hostname's latest sample,
// the same load-whole-file idiom as cloudprovider.File.
type fileStreamer struct {
	stop chan struct{}
	done chan struct{}
}

func (f *fileStreamer) Stop() {
	close(f.stop)
	<-f.done
}

type fileStatsRecord struct {
	Hostname string  `json:"hostname"`
	TxBps    float64 `json:"tx_bps"`
	RxBps    float64 `json:"rx_bps"`
}

// NewFileFactory returns a nodestate.StatsStreamFactory that polls path
// (a JSON array of fileStatsRecord) every pollInterval.
func NewFileFactory(path string, pollInterval time.Duration) nodestate.StatsStreamFactory {
	return func(hostname string, onSample func(model.NodeStats)) nodestate.StatsStreamer {
		f := &fileStreamer{stop: make(chan struct{}), done: make(chan struct{})}
		go f.run(path, pollInterval, hostname, onSample)
		return f
	}
}

func (f *fileStreamer) run(path string, pollInterval time.Duration, hostname string, onSample func(model.NodeStats)) {
	defer close(f.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			rec, ok := readFileStat(path, hostname)
			if ok {
				onSample(model.NodeStats{Hostname: hostname, TxBps: rec.TxBps, RxBps: rec.RxBps, Timestamp: time.Now()})
			}
		}
	}
}

func readFileStat(path, hostname string) (fileStatsRecord, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileStatsRecord{}, false
	}
	var records []fileStatsRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fileStatsRecord{}, false
	}
	for _, r := range records {
		if r.Hostname == hostname {
			return r, true
		}
	}
	return fileStatsRecord{}, false
}
