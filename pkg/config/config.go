// Package config describes a node in YAML: identity, parameters, bus
// and local state. Load reads a file, Validate checks it without
// mutation and Normalize fills defaults.
package config

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/canode/pkg/node"
	"github.com/robotalks/canode/pkg/node/params"
)

// Defaults filled by Normalize.
const (
	DefaultBusURL          = "tcp://localhost:7272"
	DefaultStateDir        = "."
	DefaultWatchdogTimeout = 2000
)

// Config is the node configuration file.
type Config struct {
	Node       NodeConfig    `yaml:"node"`
	Parameters []ParamConfig `yaml:"parameters"`
	BusURL     string        `yaml:"bus_url"`
	StateDir   string        `yaml:"state_dir"`
	// WatchdogTimeoutMs restarts the node when the loop stalls.
	WatchdogTimeoutMs int    `yaml:"watchdog_timeout_ms"`
	SetPolicy         string `yaml:"set_policy"`
	// DeferPersist keeps remote parameter writes until a save opcode.
	DeferPersist bool `yaml:"defer_persist"`
	// RestartMagic refuses RestartNode requests without the magic number.
	RestartMagic bool `yaml:"restart_magic"`
}

// NodeConfig is the node identity.
type NodeConfig struct {
	Name            string        `yaml:"name"`
	PreferredNodeID uint8         `yaml:"preferred_node_id"`
	UniqueID        string        `yaml:"unique_id"`
	SoftwareVersion VersionConfig `yaml:"software_version"`
	HardwareVersion VersionConfig `yaml:"hardware_version"`
	VCSCommit       uint32        `yaml:"vcs_commit"`
}

// VersionConfig is a major.minor pair.
type VersionConfig struct {
	Major uint8 `yaml:"major"`
	Minor uint8 `yaml:"minor"`
}

// ParamConfig declares one parameter.
type ParamConfig struct {
	Name  string  `yaml:"name"`
	Kind  string  `yaml:"kind"`
	Value float32 `yaml:"value"`
	Min   float32 `yaml:"min"`
	Max   float32 `yaml:"max"`
}

// Load reads a YAML file.
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML content. Unknown fields are errors.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Identity builds the node identity. uid is used unless the file
// overrides it.
func (c *Config) Identity(uid node.UniqueID) (node.Identity, error) {
	if c.Node.UniqueID != "" {
		parsed, err := node.ParseUniqueID(c.Node.UniqueID)
		if err != nil {
			return node.Identity{}, err
		}
		uid = parsed
	}
	return node.Identity{
		UniqueID:        uid,
		PreferredNodeID: c.Node.PreferredNodeID,
		Name:            c.Node.Name,
		SoftwareVersion: node.Version{Major: c.Node.SoftwareVersion.Major, Minor: c.Node.SoftwareVersion.Minor},
		HardwareVersion: node.Version{Major: c.Node.HardwareVersion.Major, Minor: c.Node.HardwareVersion.Minor},
		VCSCommit:       c.Node.VCSCommit,
	}, nil
}

// ParamList converts the declarations.
func (c *Config) ParamList() ([]params.Parameter, error) {
	list := make([]params.Parameter, 0, len(c.Parameters))
	for _, p := range c.Parameters {
		kind, err := params.ParseKind(p.Kind)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		list = append(list, params.Parameter{Name: p.Name, Kind: kind, Value: p.Value, Min: p.Min, Max: p.Max})
	}
	return list, nil
}

// Policy parses SetPolicy.
func (c *Config) Policy() (params.SetPolicy, error) {
	return params.ParsePolicy(c.SetPolicy)
}

// WatchdogTimeout returns the watchdog timeout, 0 disables it.
func (c *Config) WatchdogTimeout() time.Duration {
	return time.Duration(c.WatchdogTimeoutMs) * time.Millisecond
}

// ParamsFile is the parameter storage in StateDir.
func (c *Config) ParamsFile() string {
	return filepath.Join(c.StateDir, "params.bin")
}

// HandoffFile keeps a firmware update request across a restart.
func (c *Config) HandoffFile() string {
	return filepath.Join(c.StateDir, "handoff.bin")
}

// ImageFile receives a pulled firmware image.
func (c *Config) ImageFile() string {
	return filepath.Join(c.StateDir, "firmware.bin")
}

// Flags are the command line and environment overrides.
type Flags struct {
	ConfigFile string
	BusURL     string
	StateDir   string
}

var defaultFlags Flags

func init() {
	if val := os.Getenv("CANODE_CONFIG"); val != "" {
		defaultFlags.ConfigFile = val
	}
	if val := os.Getenv("CANODE_BUS_URL"); val != "" {
		defaultFlags.BusURL = val
	}
	if val := os.Getenv("CANODE_STATE_DIR"); val != "" {
		defaultFlags.StateDir = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultFlags.ConfigFile, "config", defaultFlags.ConfigFile, "Node config file.")
	flag.StringVar(&defaultFlags.BusURL, "bus", defaultFlags.BusURL, "Bus URL, e.g. tcp://host:port, mqtt://host:port/prefix/, socketcan://can0.")
	flag.StringVar(&defaultFlags.StateDir, "state-dir", defaultFlags.StateDir, "Directory of parameters, handoff and firmware files.")
}

// DefaultFlags gets the flags set by SetupFlags.
func DefaultFlags() *Flags {
	return &defaultFlags
}

// Load loads the config file if any, applies the overrides, then
// validates and normalizes the result.
func (f *Flags) Load() (*Config, error) {
	cfg := &Config{}
	if f.ConfigFile != "" {
		loaded, err := Load(f.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.BusURL != "" {
		cfg.BusURL = f.BusURL
	}
	if f.StateDir != "" {
		cfg.StateDir = f.StateDir
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	Normalize(cfg)
	return cfg, nil
}
