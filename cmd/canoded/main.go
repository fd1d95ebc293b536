package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"os"
	"os/exec"

	"github.com/golang/glog"

	"github.com/robotalks/canode/pkg/can/drivers"
	"github.com/robotalks/canode/pkg/config"
	"github.com/robotalks/canode/pkg/env"
	fx "github.com/robotalks/canode/pkg/framework"
	"github.com/robotalks/canode/pkg/node"
	"github.com/robotalks/canode/pkg/node/handoff"
	"github.com/robotalks/canode/pkg/node/params"
)

func init() {
	config.SetupFlags()
}

// restart replaces the process by a fresh one with the same arguments.
func restart() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	glog.Infof("restarted as pid %d", cmd.Process.Pid)
	glog.Flush()
	os.Exit(0)
	return nil
}

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg, err := config.DefaultFlags().Load()
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	var uid node.UniqueID
	if cfg.Node.UniqueID == "" {
		if uid, err = env.UniqueID(env.DefaultApp); err != nil {
			glog.Exitf("unique ID: %v", err)
		}
	}
	identity, err := cfg.Identity(uid)
	if err != nil {
		glog.Exitf("identity: %v", err)
	}
	list, err := cfg.ParamList()
	if err != nil {
		glog.Exitf("parameters: %v", err)
	}
	policy, err := cfg.Policy()
	if err != nil {
		glog.Exitf("set policy: %v", err)
	}

	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		glog.Exitf("state dir: %v", err)
	}
	storage, err := params.OpenFileStorage(cfg.ParamsFile())
	if err != nil {
		glog.Exitf("parameter storage: %v", err)
	}
	defer storage.Close()

	origin := identity.Name
	if origin == "" {
		origin = "canoded-" + identity.UniqueID.String()
	}
	driver, err := drivers.Open(cfg.BusURL, origin)
	if err != nil {
		glog.Exitf("open bus %s: %v", cfg.BusURL, err)
	}
	defer driver.Close()

	engine, err := node.New(node.Options{
		Identity:            identity,
		Parameters:          list,
		Storage:             storage,
		SetPolicy:           policy,
		DeferRemotePersist:  cfg.DeferPersist,
		RequireRestartMagic: cfg.RestartMagic,
		Driver:              driver,
		Restarter:           node.RestartFunc(restart),
		Handoff:             &handoff.FileStore{Path: cfg.HandoffFile()},
		Image:               &node.FileImage{Path: cfg.ImageFile()},
	})
	if err != nil {
		glog.Exitf("engine: %v", err)
	}
	if err := engine.Init(); err != nil {
		glog.Exitf("init: %v", err)
	}
	glog.Infof("node %s uid=%s on %s", identity.Name, identity.UniqueID, cfg.BusURL)

	loop := fx.NewLoop().Add(engine)
	if timeout := cfg.WatchdogTimeout(); timeout > 0 {
		loop.Watchdog = fx.NewWatchdog(timeout, func() {
			if err := restart(); err != nil {
				glog.Errorf("watchdog restart: %v", err)
			}
		})
	}
	if err := fx.NewRunner().HandleSignals().Go(loop).Wait(); err != nil && err != fx.ErrForcedExit {
		glog.Errorf("%v", err)
	}
}
