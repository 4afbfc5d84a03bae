package cloudprovider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"golang.org/x/crypto/ssh"

	"github.com/payperplay/hosting/internal/model"
)

// DockerConfig configures the local/dev Docker adapter (cloud_provider:
// docker{image,network,group_label_name}). Containers stand in for cloud
// machines — useful for running a whole group locally without a real cloud
// account.
type DockerConfig struct {
	Image          string
	Network        string
	GroupLabelName string

	// SSHHostAddr, when set, is a "host:port" the docker daemon's host is
	// reachable at over SSH. Host-networked containers (Network == "host")
	// don't get a per-container IP from ContainerInspect, so GetNodeInfo
	// falls back to running "docker inspect" over SSH against the host the
	// way a remote node would be probed.
	SSHHostAddr string
	SSHUser     string
	SSHKeyPath  string
}

// Docker implements Provider by creating/removing containers on the local
// Docker daemon instead of cloud machines. A node's "hostname" is also its
// container name; userData is passed through as the container's entrypoint
// command rather than cloud-init, since a container has no boot firmware to
// hand user-data to.
type Docker struct {
	cfg      DockerConfig
	client   *client.Client
	userData UserDataFunc
}

func NewDocker(cfg DockerConfig, userData UserDataFunc) (*Docker, error) {
	if cfg.GroupLabelName == "" {
		cfg.GroupLabelName = GroupLabelKey
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker cloud: create client: %w", err)
	}
	return &Docker{cfg: cfg, client: cli, userData: userData}, nil
}

func (d *Docker) CreateNode(ctx context.Context, hostname, group string, targetState model.NodeState) (model.CloudNodeInfo, error) {
	var cmd []string
	if d.userData != nil {
		rendered, err := d.userData(hostname, group, targetState)
		if err != nil {
			return model.CloudNodeInfo{}, fmt.Errorf("docker cloud: render user-data for %s: %w", hostname, err)
		}
		if rendered != "" {
			cmd = []string{"sh", "-c", rendered}
		}
	}

	hostConfig := &container.HostConfig{}
	if d.cfg.Network != "" {
		hostConfig.NetworkMode = container.NetworkMode(d.cfg.Network)
	}

	resp, err := d.client.ContainerCreate(ctx, &container.Config{
		Image:    d.cfg.Image,
		Hostname: hostname,
		Cmd:      cmd,
		Labels:   map[string]string{d.cfg.GroupLabelName: group},
	}, hostConfig, nil, nil, hostname)
	if err != nil {
		return model.CloudNodeInfo{}, fmt.Errorf("docker cloud: create container %s: %w", hostname, err)
	}
	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return model.CloudNodeInfo{}, fmt.Errorf("docker cloud: start container %s: %w", hostname, err)
	}
	return d.GetNodeInfo(ctx, hostname)
}

func (d *Docker) DeleteNode(ctx context.Context, info model.CloudNodeInfo) error {
	err := d.client.ContainerRemove(ctx, info.Hostname, container.RemoveOptions{Force: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("docker cloud: remove container %s: %w", info.Hostname, err)
	}
	return nil
}

// ListNodes enumerates every container carrying the configured group label,
// across every group at once.
func (d *Docker) ListNodes(ctx context.Context) ([]model.CloudNodeInfo, error) {
	args := filters.NewArgs(filters.Arg("label", d.cfg.GroupLabelName))
	containers, err := d.client.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("docker cloud: list containers: %w", err)
	}
	out := make([]model.CloudNodeInfo, 0, len(containers))
	for _, c := range containers {
		group, ok := c.Labels[d.cfg.GroupLabelName]
		if !ok || group == "" {
			continue
		}
		out = append(out, d.toInfo(c, group))
	}
	return out, nil
}

func (d *Docker) GetNodeInfo(ctx context.Context, hostname string) (model.CloudNodeInfo, error) {
	inspect, err := d.client.ContainerInspect(ctx, hostname)
	if err != nil {
		if client.IsErrNotFound(err) {
			return model.CloudNodeInfo{}, ErrNotFound
		}
		return model.CloudNodeInfo{}, fmt.Errorf("docker cloud: inspect container %s: %w", hostname, err)
	}
	group, ok := inspect.Config.Labels[d.cfg.GroupLabelName]
	if !ok || group == "" {
		return model.CloudNodeInfo{}, ErrNotFound
	}
	created, _ := time.Parse(time.RFC3339Nano, inspect.Created)
	info := model.CloudNodeInfo{
		ProviderID: inspect.ID,
		Hostname:   strings.TrimPrefix(inspect.Name, "/"),
		Group:      group,
		CreatedAt:  created,
		Labels:     inspect.Config.Labels,
	}
	if inspect.NetworkSettings != nil {
		for _, net := range inspect.NetworkSettings.Networks {
			if net.IPAddress != "" {
				info.IPv4 = append(info.IPv4, net.IPAddress)
			}
		}
	}
	if len(info.IPv4) == 0 && d.cfg.Network == "host" && d.cfg.SSHHostAddr != "" {
		// Best-effort: a failed probe just leaves IPv4 empty for this tick,
		// same as any other non-critical exploration field.
		if ip, err := d.probeHostIPViaSSH(ctx, hostname); err == nil && ip != "" {
			info.IPv4 = append(info.IPv4, ip)
		}
	}
	return info, nil
}

// probeHostIPViaSSH runs "docker inspect" against the daemon's host over
// SSH and extracts the bridge IP docker itself assigned the container,
// which host-networked containers otherwise hide from ContainerInspect.
func (d *Docker) probeHostIPViaSSH(ctx context.Context, hostname string) (string, error) {
	key, err := os.ReadFile(d.cfg.SSHKeyPath)
	if err != nil {
		return "", fmt.Errorf("docker cloud: read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("docker cloud: parse ssh key: %w", err)
	}

	clientCfg := &ssh.ClientConfig{
		User:            d.cfg.SSHUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	dialer := net.Dialer{Timeout: clientCfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.cfg.SSHHostAddr)
	if err != nil {
		return "", fmt.Errorf("docker cloud: ssh dial %s: %w", d.cfg.SSHHostAddr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, d.cfg.SSHHostAddr, clientCfg)
	if err != nil {
		return "", fmt.Errorf("docker cloud: ssh handshake: %w", err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	defer sshClient.Close()

	session, err := sshClient.NewSession()
	if err != nil {
		return "", fmt.Errorf("docker cloud: ssh session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	cmd := fmt.Sprintf("docker inspect -f '{{range .NetworkSettings.Networks}}{{.IPAddress}}{{end}}' %s", hostname)
	if err := session.Run(cmd); err != nil {
		return "", fmt.Errorf("docker cloud: run %q: %w", cmd, err)
	}
	return strings.TrimSpace(out.String()), nil
}

func (d *Docker) toInfo(c container.Summary, group string) model.CloudNodeInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return model.CloudNodeInfo{
		ProviderID: c.ID,
		Hostname:   name,
		Group:      group,
		CreatedAt:  time.Unix(c.Created, 0),
		Labels:     c.Labels,
	}
}

// Close releases the Docker client's idle connections.
func (d *Docker) Close() error {
	return d.client.Close()
}

var _ io.Closer = (*Docker)(nil)
