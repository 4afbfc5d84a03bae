// Package cloudinit renders the user-data passed to cloudprovider.Provider's
// CreateNode: a base #cloud-config document plus a set of extra files, each
// gzip+base64 encoded into write_files, and an extra-vars mapping stamped
// with hostname/group/target-state appended as its own write_files entry.
package cloudinit

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/payperplay/hosting/internal/model"
)

// ExtraFile is one additional file baked into the rendered cloud-config,
// read from source on disk and written to destination on the target
// machine.
type ExtraFile struct {
	Source      string
	Destination string
}

// Config is the cloud-init generator's own configuration, loaded from the
// process config's cloud_init section.
type Config struct {
	UserDataBasePath     string // base #cloud-config document (YAML)
	ExtraVarsBasePath    string // base extra-vars mapping (YAML)
	ExtraVarsDestination string // where the rendered extra-vars land on the VM
	ExtraFiles           []ExtraFile
}

type cloudConfig struct {
	PackageUpgrade bool              `yaml:"package_upgrade"`
	Packages       []string          `yaml:"packages,omitempty"`
	WriteFiles     []cloudConfigFile `yaml:"write_files"`
	RunCmd         []string          `yaml:"runcmd,omitempty"`
}

type cloudConfigFile struct {
	Path     string `yaml:"path"`
	Encoding string `yaml:"encoding"`
	Content  string `yaml:"content"`
}

// Generator renders user-data for a single provisioning call.
type Generator struct {
	cfg Config
}

func NewGenerator(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

// Render produces the full "#cloud-config\n..." document for hostname in
// group, targeted at targetState (Ready or Active — stamped into the extra
// vars as the plain string "ready" or "active", so nothing on the machine
// depends on the engine's internal node-state type).
func (g *Generator) Render(hostname, group string, targetState model.NodeState) (string, error) {
	base, err := readCloudConfig(g.cfg.UserDataBasePath)
	if err != nil {
		return "", err
	}

	for _, f := range g.cfg.ExtraFiles {
		encoded, err := encodeFile(f.Source)
		if err != nil {
			return "", fmt.Errorf("cloudinit: encode %s: %w", f.Source, err)
		}
		base.WriteFiles = append(base.WriteFiles, cloudConfigFile{
			Path:     f.Destination,
			Encoding: "gz+b64",
			Content:  encoded,
		})
	}

	extraVars, err := g.extraVars(hostname, group, targetState)
	if err != nil {
		return "", err
	}
	encodedVars, err := encode(bytes.NewReader(extraVars))
	if err != nil {
		return "", fmt.Errorf("cloudinit: encode extra vars: %w", err)
	}
	base.WriteFiles = append(base.WriteFiles, cloudConfigFile{
		Path:     g.cfg.ExtraVarsDestination,
		Encoding: "gz+b64",
		Content:  encodedVars,
	})

	var out bytes.Buffer
	out.WriteString("#cloud-config\n")
	enc := yaml.NewEncoder(&out)
	if err := enc.Encode(base); err != nil {
		return "", fmt.Errorf("cloudinit: marshal cloud-config: %w", err)
	}
	enc.Close()
	return out.String(), nil
}

func (g *Generator) extraVars(hostname, group string, targetState model.NodeState) ([]byte, error) {
	data, err := os.ReadFile(g.cfg.ExtraVarsBasePath)
	if err != nil {
		return nil, fmt.Errorf("cloudinit: read extra vars base file %s: %w", g.cfg.ExtraVarsBasePath, err)
	}
	var vars map[string]any
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &vars); err != nil {
			return nil, fmt.Errorf("cloudinit: parse extra vars base file %s: %w", g.cfg.ExtraVarsBasePath, err)
		}
	}
	if vars == nil {
		vars = make(map[string]any)
	}
	vars["hostname"] = hostname
	vars["node_group"] = group
	vars["node_state"] = targetStateLabel(targetState)

	return yaml.Marshal(vars)
}

func targetStateLabel(s model.NodeState) string {
	switch s {
	case model.StateActive:
		return "active"
	default:
		return "ready"
	}
}

func readCloudConfig(path string) (cloudConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cloudConfig{}, fmt.Errorf("cloudinit: read cloud config %s: %w", path, err)
	}
	var cfg cloudConfig
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cloudConfig{}, fmt.Errorf("cloudinit: parse cloud config %s: %w", path, err)
		}
	}
	return cfg, nil
}

func encodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("open file for encoding %s: %w", path, err)
	}
	return encode(bytes.NewReader(data))
}

func encode(r *bytes.Reader) (string, error) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	if _, err := io.Copy(w, r); err != nil {
		return "", fmt.Errorf("gzip: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return base64.StdEncoding.EncodeToString(gz.Bytes()), nil
}
