// Package config loads the process configuration from the path in
// APP_CONFIG (default config.yml): a YAML document describing the
// pluggable providers, poller intervals, and per-state timeouts, with
// .env-sourced environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yml"

// Duration accepts either a Go duration string ("30s", "2m") or a plain
// integer number of seconds in YAML, so operators can write whichever reads
// more naturally for a given field.
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asString string
	if err := value.Decode(&asString); err == nil && asString != "" && value.ShortTag() != "!!int" {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", asString, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds int64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("config: duration must be a string like \"30s\" or a number of seconds: %w", err)
	}
	*d = Duration(time.Duration(seconds) * time.Second)
	return nil
}

// Config is the top-level document.
type Config struct {
	NodeStats                   NodeStats                    `yaml:"node_stats"`
	NodeDiscovery               PollInterval                 `yaml:"node_discovery"`
	NodeExploration             PollInterval                 `yaml:"node_exploration"`
	NodeGroupDiscovery          PollInterval                 `yaml:"node_group_discovery"`
	NodeDiscoveryProvider       NodeDiscoveryProvider        `yaml:"node_discovery_provider"`
	NodeGroupDiscoveryProviders []NodeGroupDiscoveryProvider `yaml:"node_group_discovery_providers"`
	CloudProvider               CloudProvider                `yaml:"cloud_provider"`
	DNSProvider                 DNSProvider                  `yaml:"dns_provider"`
	CloudInit                   CloudInit                    `yaml:"cloud_init"`
	NodeGroupScaler             NodeGroupScaler              `yaml:"node_group_scaler"`
	NodeGroupDiscoveryTimeout   Duration                     `yaml:"node_group_discovery_timeout"`
	NodeController              NodeController               `yaml:"node_controller"`
	DebugServer                 DebugServer                  `yaml:"debug_server"`
	Audit                       Audit                        `yaml:"audit"`
	Telemetry                   Telemetry                    `yaml:"telemetry"`
}

// DebugServer configures the optional operational HTTP surface: health
// checks, /metrics, and a live /ws/events stream.
type DebugServer struct {
	Address   string `yaml:"address"` // empty disables the HTTP listener
	AuthToken string `yaml:"auth_token"`
}

// Audit configures the optional gorm-backed audit trail. When DatabaseURL
// is empty, audit events go to the structured logger only.
type Audit struct {
	DatabaseURL string `yaml:"database_url"`
}

// Telemetry configures the optional InfluxDB bandwidth-sample sink.
type Telemetry struct {
	InfluxDB InfluxDB `yaml:"influxdb"`
}

type InfluxDB struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// PollInterval is the recurring shape "{interval: <duration>}" used by the
// three poller sections.
type PollInterval struct {
	Interval Duration `yaml:"interval"`
}

// NodeStats selects the telemetry source.
type NodeStats struct {
	Type     string       `yaml:"type"` // "file" | "nss"
	Interval Duration     `yaml:"interval"`
	Path     string       `yaml:"path"`
	TLS      NodeStatsTLS `yaml:"tls"`
	Port     int          `yaml:"port"`
}

type NodeStatsTLS struct {
	CACertPath     string `yaml:"ca_cert_path"`
	ClientCertPath string `yaml:"client_cert_path"`
	ClientKeyPath  string `yaml:"client_key_path"`
	TargetSNIName  string `yaml:"target_sni_name"`
}

// NodeDiscoveryProvider selects the single registry adapter that answers
// node-level discovery.
type NodeDiscoveryProvider struct {
	Type    string `yaml:"type"` // "mock" | "file" | "consul"
	Path    string `yaml:"path"`
	Service string `yaml:"service_name"`
	Address string `yaml:"address"`
}

// NodeGroupDiscoveryProvider is one entry of the
// node_group_discovery_providers list; several can be configured at once.
type NodeGroupDiscoveryProvider struct {
	Type      string `yaml:"type"` // "file" | "consul"
	Path      string `yaml:"path"`
	KeyPrefix string `yaml:"key_prefix"`
	Address   string `yaml:"address"`
}

// CloudProvider selects the cloud backend.
type CloudProvider struct {
	Type            string   `yaml:"type"` // "file" | "hetzner" | "docker"
	ExplorationPath string   `yaml:"exploration_path"`
	DiscoveryPath   string   `yaml:"discovery_path"`
	ServerType      string   `yaml:"server_type"`
	Image           string   `yaml:"image"`
	SSHKeys         []string `yaml:"ssh_keys"`
	GroupLabelName  string   `yaml:"group_label_name"`
	APIAddress      string   `yaml:"api_address"`
	APIToken        string   `yaml:"api_token"`
	Location        string   `yaml:"location"`
	DockerNetwork   string   `yaml:"docker_network"`
	DockerSSHAddr   string   `yaml:"docker_ssh_addr"`
	DockerSSHUser   string   `yaml:"docker_ssh_user"`
	DockerSSHKey    string   `yaml:"docker_ssh_key_path"`
}

// DNSProvider selects the DNS backend.
type DNSProvider struct {
	Type      string `yaml:"type"` // "mock" | "hetzner" | "cloudflare"
	ZoneApex  string `yaml:"zone_apex"`
	RecordTTL int    `yaml:"record_ttl"`
	APIToken  string `yaml:"api_token"`
	Address   string `yaml:"address"`
	ZoneID    string `yaml:"zone_id"`
}

// CloudInit configures user-data generation for provisioned machines.
type CloudInit struct {
	UserDataBaseFilePath     string          `yaml:"user_data_base_file_path"`
	ExtraVarsBaseFilePath    string          `yaml:"extra_vars_base_file_path"`
	ExtraVarsDestinationPath string          `yaml:"extra_vars_destination_path"`
	UserDataFiles            []CloudInitFile `yaml:"user_data_files"`
}

type CloudInitFile struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// NodeGroupScaler configures scaler-wide behavior.
type NodeGroupScaler struct {
	StartupCooldown    Duration `yaml:"startup_cooldown"`
	ScaleLockTimeoutS  Duration `yaml:"scale_lock_timeout_s"`
	NodeHostnameSuffix string   `yaml:"node_hostname_suffix"`
}

// NodeController configures the per-node state timeouts.
type NodeController struct {
	DrainingTime        Duration `yaml:"draining_time"`
	ProvisioningTimeout Duration `yaml:"provisioning_timeout"`
	DiscoveryTimeout    Duration `yaml:"discovery_timeout"`
	ExplorationTimeout  Duration `yaml:"exploration_timeout"`
}

// Load reads the config document from the path in APP_CONFIG, falling back
// to "config.yml", and applies defaults for anything left zero. Before
// parsing, it loads a ".env" file (if present) into the process
// environment — secrets like API tokens are meant to live there rather
// than in the checked-in YAML, and env always wins over whatever the YAML
// document says.
func Load() (*Config, error) {
	path := os.Getenv("APP_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	return LoadFile(path)
}

// LoadFile reads and parses the config document at path, then layers
// ".env" secret overrides (HETZNER_CLOUD_API_TOKEN, HETZNER_DNS_API_TOKEN,
// CLOUDFLARE_API_TOKEN) on top.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return &cfg, nil
}

// applyEnvOverrides lets deployment secrets live in the environment instead
// of the YAML file, following the env-wins convention above.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HETZNER_CLOUD_API_TOKEN"); v != "" && c.CloudProvider.Type == "hetzner" {
		c.CloudProvider.APIToken = v
	}
	if v := os.Getenv("HETZNER_DNS_API_TOKEN"); v != "" && c.DNSProvider.Type == "hetzner" {
		c.DNSProvider.APIToken = v
	}
	if v := os.Getenv("CLOUDFLARE_API_TOKEN"); v != "" && c.DNSProvider.Type == "cloudflare" {
		c.DNSProvider.APIToken = v
	}
}

func (c *Config) applyDefaults() {
	if c.NodeDiscovery.Interval == 0 {
		c.NodeDiscovery.Interval = Duration(5 * time.Second)
	}
	if c.NodeExploration.Interval == 0 {
		c.NodeExploration.Interval = Duration(15 * time.Second)
	}
	if c.NodeGroupDiscovery.Interval == 0 {
		c.NodeGroupDiscovery.Interval = Duration(30 * time.Second)
	}
	if c.NodeGroupDiscoveryTimeout == 0 {
		c.NodeGroupDiscoveryTimeout = Duration(2 * time.Minute)
	}
	if c.NodeGroupScaler.ScaleLockTimeoutS == 0 {
		c.NodeGroupScaler.ScaleLockTimeoutS = Duration(3 * time.Minute)
	}
	if c.NodeController.DrainingTime == 0 {
		c.NodeController.DrainingTime = Duration(2 * time.Minute)
	}
	if c.NodeController.ProvisioningTimeout == 0 {
		c.NodeController.ProvisioningTimeout = Duration(5 * time.Minute)
	}
	if c.NodeController.DiscoveryTimeout == 0 {
		c.NodeController.DiscoveryTimeout = Duration(2 * time.Minute)
	}
	if c.NodeController.ExplorationTimeout == 0 {
		c.NodeController.ExplorationTimeout = Duration(2 * time.Minute)
	}
	if c.DNSProvider.RecordTTL == 0 {
		c.DNSProvider.RecordTTL = 60
	}
}
