package nodestate

import "github.com/payperplay/hosting/internal/model"

func startStatsStreamer(d *Deps, hostname string) StatsStreamer {
	return d.Stats(hostname, func(s model.NodeStats) {
		if d.StatsObserver != nil {
			d.StatsObserver(s)
		}
	})
}
