package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/canode/pkg/node"
	"github.com/robotalks/canode/pkg/node/params"
)

const sample = `
node:
  name: org.example.esc
  preferred_node_id: 42
  unique_id: "0102030405060708090a0b0c0d0e0f10"
  software_version: {major: 1, minor: 2}
  hardware_version: {major: 3, minor: 0}
bus_url: mqtt://localhost:1883/canode/
state_dir: /var/lib/canode
set_policy: clamp
restart_magic: true
parameters:
  - {name: NODEID, kind: integer, value: 0, min: 0, max: 127}
  - {name: GAIN, kind: real, value: 0.5, min: 0, max: 1}
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	Normalize(cfg)

	assert.Equal(t, "mqtt://localhost:1883/canode/", cfg.BusURL)
	assert.Equal(t, DefaultWatchdogTimeout, cfg.WatchdogTimeoutMs)
	assert.True(t, cfg.RestartMagic)
	assert.False(t, cfg.DeferPersist)
	assert.Equal(t, 2*time.Second, cfg.WatchdogTimeout())
	assert.Equal(t, filepath.Join("/var/lib/canode", "params.bin"), cfg.ParamsFile())

	id, err := cfg.Identity(node.UniqueID{})
	require.NoError(t, err)
	assert.Equal(t, "org.example.esc", id.Name)
	assert.Equal(t, uint8(42), id.PreferredNodeID)
	assert.Equal(t, byte(0x10), id.UniqueID[15])
	assert.Equal(t, node.Version{Major: 1, Minor: 2}, id.SoftwareVersion)

	list, err := cfg.ParamList()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, params.Parameter{Name: "GAIN", Kind: params.Real, Value: 0.5, Min: 0, Max: 1}, list[1])

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, params.PolicyClamp, policy)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("bus: tcp://x\n"))
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	Normalize(cfg)
	assert.Equal(t, DefaultBusURL, cfg.BusURL)
	assert.Equal(t, DefaultStateDir, cfg.StateDir)
	assert.Equal(t, "accept", cfg.SetPolicy)
}

func TestIdentityKeepsGivenUniqueID(t *testing.T) {
	cfg := &Config{}
	uid := node.UniqueID{1, 2, 3}
	id, err := cfg.Identity(uid)
	require.NoError(t, err)
	assert.Equal(t, uid, id.UniqueID)
}

func TestValidate(t *testing.T) {
	long := make([]byte, params.NameMaxLength+1)
	for i := range long {
		long[i] = 'x'
	}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"preferred node ID", Config{Node: NodeConfig{PreferredNodeID: 128}}},
		{"unique ID", Config{Node: NodeConfig{UniqueID: "xyz"}}},
		{"non ASCII name", Config{Node: NodeConfig{Name: "nöde"}}},
		{"watchdog", Config{WatchdogTimeoutMs: -1}},
		{"policy", Config{SetPolicy: "maybe"}},
		{"empty param name", Config{Parameters: []ParamConfig{{Kind: "real"}}}},
		{"long param name", Config{Parameters: []ParamConfig{{Name: string(long), Kind: "real"}}}},
		{"duplicate param", Config{Parameters: []ParamConfig{{Name: "A", Kind: "real"}, {Name: "A", Kind: "real"}}}},
		{"min above max", Config{Parameters: []ParamConfig{{Name: "A", Kind: "real", Min: 2, Max: 1}}}},
		{"kind", Config{Parameters: []ParamConfig{{Name: "A", Kind: "string"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, Validate(&tc.cfg))
		})
	}
}

func TestNormalizeTruncatesName(t *testing.T) {
	name := make([]byte, 100)
	for i := range name {
		name[i] = 'a'
	}
	cfg := &Config{Node: NodeConfig{Name: string(name)}}
	Normalize(cfg)
	assert.Len(t, cfg.Node.Name, 80)
}

func TestFlagsLoad(t *testing.T) {
	dir, err := ioutil.TempDir("", "canode-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	fn := filepath.Join(dir, "node.yaml")
	require.NoError(t, ioutil.WriteFile(fn, []byte(sample), 0644))

	f := &Flags{ConfigFile: fn, BusURL: "tcp://bus:7272"}
	cfg, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, "tcp://bus:7272", cfg.BusURL)
	assert.Equal(t, "/var/lib/canode", cfg.StateDir)

	f = &Flags{ConfigFile: filepath.Join(dir, "missing.yaml")}
	_, err = f.Load()
	assert.Error(t, err)
}
