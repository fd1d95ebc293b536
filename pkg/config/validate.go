package config

import (
	"fmt"

	"github.com/robotalks/canode/pkg/node"
	"github.com/robotalks/canode/pkg/node/params"
)

// Validate checks the configuration without mutating it.
func Validate(cfg *Config) error {
	if cfg.Node.PreferredNodeID > 127 {
		return fmt.Errorf("node: preferred_node_id %d out of 0..127", cfg.Node.PreferredNodeID)
	}
	if cfg.Node.UniqueID != "" {
		if _, err := node.ParseUniqueID(cfg.Node.UniqueID); err != nil {
			return fmt.Errorf("node: %w", err)
		}
	}
	for i := 0; i < len(cfg.Node.Name); i++ {
		if cfg.Node.Name[i] > 0x7F {
			return fmt.Errorf("node: name must contain ASCII characters only")
		}
	}
	if cfg.WatchdogTimeoutMs < 0 {
		return fmt.Errorf("watchdog_timeout_ms must not be negative")
	}
	if _, err := params.ParsePolicy(cfg.SetPolicy); err != nil {
		return err
	}

	seen := make(map[string]bool, len(cfg.Parameters))
	for i, p := range cfg.Parameters {
		switch {
		case p.Name == "":
			return fmt.Errorf("parameter #%d: name required", i)
		case len(p.Name) > params.NameMaxLength:
			return fmt.Errorf("parameter %q: name longer than %d", p.Name, params.NameMaxLength)
		case seen[p.Name]:
			return fmt.Errorf("parameter %q: declared twice", p.Name)
		case p.Min > p.Max:
			return fmt.Errorf("parameter %q: min %v > max %v", p.Name, p.Min, p.Max)
		}
		if _, err := params.ParseKind(p.Kind); err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		seen[p.Name] = true
	}
	return nil
}
