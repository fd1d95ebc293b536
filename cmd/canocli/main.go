package main

import (
	"github.com/robotalks/canode/pkg/cli/sh"
	"github.com/robotalks/canode/pkg/config"

	_ "github.com/robotalks/canode/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func init() {
	config.SetupFlags()
}

func main() {
	sh.Main()
}
