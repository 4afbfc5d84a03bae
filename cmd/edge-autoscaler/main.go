package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/payperplay/hosting/internal/actorkit"
	"github.com/payperplay/hosting/internal/audit"
	"github.com/payperplay/hosting/internal/cloudinit"
	"github.com/payperplay/hosting/internal/cloudprovider"
	"github.com/payperplay/hosting/internal/debugserver"
	"github.com/payperplay/hosting/internal/dnsprovider"
	"github.com/payperplay/hosting/internal/groupcontroller"
	"github.com/payperplay/hosting/internal/groupstate"
	"github.com/payperplay/hosting/internal/model"
	"github.com/payperplay/hosting/internal/nodestate"
	"github.com/payperplay/hosting/internal/pollers"
	"github.com/payperplay/hosting/internal/registry"
	"github.com/payperplay/hosting/internal/scaler"
	"github.com/payperplay/hosting/internal/statsstream"
	"github.com/payperplay/hosting/internal/telemetrysink"
	"github.com/payperplay/hosting/pkg/config"
	"github.com/payperplay/hosting/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal("failed to load configuration", err, nil)
	}

	log := logging.New(logging.INFO, os.Stdout, true)
	logging.SetDefault(log)
	log.Info("starting edge autoscaler", map[string]any{
		"node_discovery_provider": cfg.NodeDiscoveryProvider.Type,
		"cloud_provider":          cfg.CloudProvider.Type,
		"dns_provider":            cfg.DNSProvider.Type,
	})

	cloud := buildCloudProvider(cfg, log)
	dns := buildDNSProvider(cfg)
	nodeDiscovery := buildNodeDiscoveryProvider(cfg)
	groupDiscoverySources := buildGroupDiscoveryProviders(cfg)
	stats := buildStatsStreamFactory(cfg, log)

	debugSrv := debugserver.New(debugserver.Config{
		Address:   cfg.DebugServer.Address,
		AuthToken: cfg.DebugServer.AuthToken,
	}, log)
	debugSrv.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		debugSrv.Stop(ctx)
	}()

	auditSink, err := audit.New(cfg.Audit.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to initialize audit sink", err, nil)
	}

	var statsSink func(group string, sample model.NodeStats)
	if cfg.Telemetry.InfluxDB.URL != "" {
		influx, err := telemetrysink.New(telemetrysink.Config{
			URL:    cfg.Telemetry.InfluxDB.URL,
			Token:  cfg.Telemetry.InfluxDB.Token,
			Org:    cfg.Telemetry.InfluxDB.Org,
			Bucket: cfg.Telemetry.InfluxDB.Bucket,
		})
		if err != nil {
			log.Fatal("failed to initialize influxdb telemetry sink", err, nil)
		}
		defer influx.Close()
		statsSink = influx.WriteSample
	}

	timeouts := nodestate.Timeouts{
		ProvisioningTimeout: cfg.NodeController.ProvisioningTimeout.Duration(),
		DiscoveryTimeout:    cfg.NodeController.DiscoveryTimeout.Duration(),
		ExplorationTimeout:  cfg.NodeController.ExplorationTimeout.Duration(),
		DrainingTime:        cfg.NodeController.DrainingTime.Duration(),
	}

	newScaler := func(group string) groupstate.ScalerFactory {
		return func(groupConfig *model.GroupConfig) *scaler.Scaler {
			deps := scaler.Deps{
				Group:           group,
				Cloud:           cloud,
				DNS:             dns,
				Registry:        nodeDiscovery,
				Stats:           stats,
				HostnameSuffix:  cfg.NodeGroupScaler.NodeHostnameSuffix,
				Rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
				Timeouts:        timeouts,
				StartupCooldown: cfg.NodeGroupScaler.StartupCooldown.Duration(),
				ScaleLockMax:    cfg.NodeGroupScaler.ScaleLockTimeoutS.Duration(),
				EventSink: func(info model.NodeStateInfo) {
					debugSrv.Publish(debugserver.Event{
						Type:      "node_state",
						Timestamp: time.Now(),
						Group:     info.Group,
						Hostname:  info.Hostname,
						State:     info.State.String(),
					})
				},
				StatsSink: statsSink,
				AuditSink: auditSink.Record,
				Log:       log.With(map[string]any{"group": group}),
			}
			return scaler.New(deps, groupConfig)
		}
	}

	controller := groupcontroller.New(groupcontroller.Deps{
		NewScaler:        newScaler,
		DiscoveryTimeout: cfg.NodeGroupDiscoveryTimeout.Duration(),
		Log:              log,
	})

	groupPoller := pollers.StartGroupDiscoveryPoller(cfg.NodeGroupDiscovery.Interval.Duration(), groupDiscoverySources, controller, log)
	nodePoller := pollers.StartNodeDiscoveryPoller(cfg.NodeDiscovery.Interval.Duration(), nodeDiscovery, controller, log)
	explorationPoller := pollers.StartNodeExplorationPoller(cfg.NodeExploration.Interval.Duration(), cloud, controller, log)
	// controller.Stop() must only run once every producer into it (the
	// three pollers, plus the reconciliation ticker below) has stopped —
	// deferred first so LIFO unwinding runs it last.
	defer controller.Stop()
	defer groupPoller.Stop()
	defer nodePoller.Stop()
	defer explorationPoller.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tick := actorkit.StartTicker(time.Second, func() { controller.Tick(ctx) })
	defer tick.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down", nil)
}

func buildCloudProvider(cfg *config.Config, log *logging.Logger) cloudprovider.Provider {
	switch cfg.CloudProvider.Type {
	case "hetzner":
		var userData cloudprovider.UserDataFunc
		if cfg.CloudInit.UserDataBaseFilePath != "" {
			gen := cloudinit.NewGenerator(cloudinit.Config{
				UserDataBasePath:     cfg.CloudInit.UserDataBaseFilePath,
				ExtraVarsBasePath:    cfg.CloudInit.ExtraVarsBaseFilePath,
				ExtraVarsDestination: cfg.CloudInit.ExtraVarsDestinationPath,
				ExtraFiles:           buildCloudInitExtraFiles(cfg),
			})
			userData = gen.Render
		}
		return cloudprovider.NewHetzner(cloudprovider.HetznerConfig{
			ServerType:     cfg.CloudProvider.ServerType,
			Image:          cfg.CloudProvider.Image,
			SSHKeys:        cfg.CloudProvider.SSHKeys,
			GroupLabelName: cfg.CloudProvider.GroupLabelName,
			APIAddress:     cfg.CloudProvider.APIAddress,
			APIToken:       cfg.CloudProvider.APIToken,
			Location:       cfg.CloudProvider.Location,
		}, userData)
	case "docker":
		var userData cloudprovider.UserDataFunc
		if cfg.CloudInit.UserDataBaseFilePath != "" {
			gen := cloudinit.NewGenerator(cloudinit.Config{
				UserDataBasePath:     cfg.CloudInit.UserDataBaseFilePath,
				ExtraVarsBasePath:    cfg.CloudInit.ExtraVarsBaseFilePath,
				ExtraVarsDestination: cfg.CloudInit.ExtraVarsDestinationPath,
				ExtraFiles:           buildCloudInitExtraFiles(cfg),
			})
			userData = gen.Render
		}
		docker, err := cloudprovider.NewDocker(cloudprovider.DockerConfig{
			Image:          cfg.CloudProvider.Image,
			Network:        cfg.CloudProvider.DockerNetwork,
			GroupLabelName: cfg.CloudProvider.GroupLabelName,
			SSHHostAddr:    cfg.CloudProvider.DockerSSHAddr,
			SSHUser:        cfg.CloudProvider.DockerSSHUser,
			SSHKeyPath:     cfg.CloudProvider.DockerSSHKey,
		}, userData)
		if err != nil {
			log.Fatal("failed to initialize docker cloud provider", err, nil)
		}
		return docker
	case "file":
		return cloudprovider.NewFile(cfg.CloudProvider.ExplorationPath, cfg.CloudProvider.DiscoveryPath)
	default:
		log.Warn("cloud_provider.type not set or unrecognized, using in-memory mock", map[string]any{"type": cfg.CloudProvider.Type})
		return cloudprovider.NewMock()
	}
}

func buildCloudInitExtraFiles(cfg *config.Config) []cloudinit.ExtraFile {
	out := make([]cloudinit.ExtraFile, 0, len(cfg.CloudInit.UserDataFiles))
	for _, f := range cfg.CloudInit.UserDataFiles {
		out = append(out, cloudinit.ExtraFile{Source: f.Source, Destination: f.Destination})
	}
	return out
}

func buildDNSProvider(cfg *config.Config) dnsprovider.Provider {
	switch cfg.DNSProvider.Type {
	case "hetzner":
		return dnsprovider.NewHetzner(cfg.DNSProvider.APIToken, cfg.DNSProvider.ZoneID, cfg.DNSProvider.RecordTTL)
	case "cloudflare":
		return dnsprovider.NewCloudflare(cfg.DNSProvider.APIToken, cfg.DNSProvider.ZoneID, cfg.DNSProvider.RecordTTL)
	default:
		return dnsprovider.NewMock()
	}
}

func buildNodeDiscoveryProvider(cfg *config.Config) registry.NodeDiscovery {
	switch cfg.NodeDiscoveryProvider.Type {
	case "consul":
		return registry.NewConsulNodeDiscovery(cfg.NodeDiscoveryProvider.Address, cfg.NodeDiscoveryProvider.Service)
	case "file":
		return registry.NewFileNodeDiscovery(cfg.NodeDiscoveryProvider.Path)
	default:
		return registry.NewMock()
	}
}

func buildGroupDiscoveryProviders(cfg *config.Config) []registry.GroupDiscovery {
	out := make([]registry.GroupDiscovery, 0, len(cfg.NodeGroupDiscoveryProviders))
	for _, p := range cfg.NodeGroupDiscoveryProviders {
		switch p.Type {
		case "consul":
			out = append(out, registry.NewConsulGroupDiscovery(p.Address, p.KeyPrefix))
		case "file":
			out = append(out, registry.NewFileGroupDiscovery(p.Path))
		}
	}
	return out
}

func buildStatsStreamFactory(cfg *config.Config, log *logging.Logger) nodestate.StatsStreamFactory {
	switch cfg.NodeStats.Type {
	case "nss":
		return statsstream.NewFactory(statsstream.TLSConfig{
			Port:           cfg.NodeStats.Port,
			CACertPath:     cfg.NodeStats.TLS.CACertPath,
			ClientCertPath: cfg.NodeStats.TLS.ClientCertPath,
			ClientKeyPath:  cfg.NodeStats.TLS.ClientKeyPath,
			TargetSNIName:  cfg.NodeStats.TLS.TargetSNIName,
		}, log)
	default:
		interval := cfg.NodeStats.Interval.Duration()
		if interval == 0 {
			interval = 5 * time.Second
		}
		return statsstream.NewFileFactory(cfg.NodeStats.Path, interval)
	}
}
