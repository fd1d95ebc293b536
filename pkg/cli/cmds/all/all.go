// Package all registers every command set with the shell.
package all

import (
	// node management commands
	_ "github.com/robotalks/canode/pkg/cli/cmds/node"
)
