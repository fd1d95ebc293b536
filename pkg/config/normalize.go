package config

import (
	"github.com/robotalks/canode/pkg/dsdl"
	"github.com/robotalks/canode/pkg/node/params"
)

// Normalize fills defaults. It must be called after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if len(cfg.Node.Name) > dsdl.NodeNameMaxLength {
		cfg.Node.Name = cfg.Node.Name[:dsdl.NodeNameMaxLength]
	}
	if cfg.BusURL == "" {
		cfg.BusURL = DefaultBusURL
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	if cfg.WatchdogTimeoutMs == 0 {
		cfg.WatchdogTimeoutMs = DefaultWatchdogTimeout
	}
	if cfg.SetPolicy == "" {
		cfg.SetPolicy = params.PolicyAccept.String()
	}
}
