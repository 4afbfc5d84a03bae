package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestLoadFileFullDocument(t *testing.T) {
	path := writeConfig(t, `
node_stats:
  type: nss
  port: 7777
  tls:
    ca_cert_path: /etc/certs/ca.pem
    client_cert_path: /etc/certs/client.pem
    client_key_path: /etc/certs/client.key
    target_sni_name: stats.example.com
node_discovery:
  interval: 10s
node_exploration:
  interval: 20s
node_group_discovery:
  interval: 1m
node_discovery_provider:
  type: consul
  service_name: edge-node
  address: http://127.0.0.1:8500
node_group_discovery_providers:
  - type: file
    path: groups.json
  - type: consul
    key_prefix: autoscaler/groups
    address: http://127.0.0.1:8500
cloud_provider:
  type: hetzner
  server_type: cx22
  image: debian-12
  ssh_keys: [ops]
  group_label_name: node-group
  api_token: from-yaml
  location: fsn1
dns_provider:
  type: cloudflare
  zone_id: abc123
  record_ttl: 120
  api_token: from-yaml
node_group_scaler:
  startup_cooldown: 45s
  scale_lock_timeout_s: 180
  node_hostname_suffix: nodes.example.com
node_group_discovery_timeout: 2m
node_controller:
  draining_time: 90s
  provisioning_timeout: 4m
  discovery_timeout: 2m
  exploration_timeout: 3m
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Equal(t, "nss", cfg.NodeStats.Type)
	require.Equal(t, 7777, cfg.NodeStats.Port)
	require.Equal(t, "stats.example.com", cfg.NodeStats.TLS.TargetSNIName)
	require.Equal(t, 10*time.Second, cfg.NodeDiscovery.Interval.Duration())
	require.Equal(t, 20*time.Second, cfg.NodeExploration.Interval.Duration())
	require.Equal(t, time.Minute, cfg.NodeGroupDiscovery.Interval.Duration())
	require.Equal(t, "consul", cfg.NodeDiscoveryProvider.Type)
	require.Len(t, cfg.NodeGroupDiscoveryProviders, 2)
	require.Equal(t, "autoscaler/groups", cfg.NodeGroupDiscoveryProviders[1].KeyPrefix)
	require.Equal(t, "hetzner", cfg.CloudProvider.Type)
	require.Equal(t, "node-group", cfg.CloudProvider.GroupLabelName)
	require.Equal(t, 120, cfg.DNSProvider.RecordTTL)
	require.Equal(t, 45*time.Second, cfg.NodeGroupScaler.StartupCooldown.Duration())
	// A bare number is read as seconds.
	require.Equal(t, 3*time.Minute, cfg.NodeGroupScaler.ScaleLockTimeoutS.Duration())
	require.Equal(t, "nodes.example.com", cfg.NodeGroupScaler.NodeHostnameSuffix)
	require.Equal(t, 90*time.Second, cfg.NodeController.DrainingTime.Duration())
	require.Equal(t, 4*time.Minute, cfg.NodeController.ProvisioningTimeout.Duration())
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
cloud_provider:
  type: file
  exploration_path: machines.json
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.NodeDiscovery.Interval.Duration())
	require.Equal(t, 15*time.Second, cfg.NodeExploration.Interval.Duration())
	require.Equal(t, 30*time.Second, cfg.NodeGroupDiscovery.Interval.Duration())
	require.Equal(t, 2*time.Minute, cfg.NodeGroupDiscoveryTimeout.Duration())
	require.Equal(t, 3*time.Minute, cfg.NodeGroupScaler.ScaleLockTimeoutS.Duration())
	require.Equal(t, 2*time.Minute, cfg.NodeController.DrainingTime.Duration())
	require.Equal(t, 5*time.Minute, cfg.NodeController.ProvisioningTimeout.Duration())
	require.Equal(t, 60, cfg.DNSProvider.RecordTTL)
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	path := writeConfig(t, `
cloud_provider:
  type: hetzner
  api_token: from-yaml
dns_provider:
  type: cloudflare
  api_token: from-yaml
`)
	t.Setenv("HETZNER_CLOUD_API_TOKEN", "cloud-from-env")
	t.Setenv("CLOUDFLARE_API_TOKEN", "dns-from-env")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "cloud-from-env", cfg.CloudProvider.APIToken)
	require.Equal(t, "dns-from-env", cfg.DNSProvider.APIToken)
}

func TestLoadHonorsAppConfigEnv(t *testing.T) {
	path := writeConfig(t, `
dns_provider:
  type: mock
`)
	t.Setenv("APP_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "mock", cfg.DNSProvider.Type)
}

func TestLoadFileMissingPathErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}

func TestDurationRejectsGarbage(t *testing.T) {
	path := writeConfig(t, `
node_discovery:
  interval: not-a-duration
`)
	_, err := LoadFile(path)
	require.Error(t, err)
}
