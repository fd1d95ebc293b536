// Package sh is the interactive management shell: it joins the bus as
// a management node and sends requests to one target node at a time.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/canode/pkg/can/drivers"
	"github.com/robotalks/canode/pkg/config"
	"github.com/robotalks/canode/pkg/dsdl"
	fx "github.com/robotalks/canode/pkg/framework"
	"github.com/robotalks/canode/pkg/peer"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Flags  *config.Flags
	Bus    *BusLoop
	Target uint8
}

// BusLoop is a running loop with the management node.
type BusLoop struct {
	Ctx     context.Context
	Cancel  func()
	URL     string
	Loop    *fx.Loop
	Manager *peer.Manager
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly    bool
	outputJSON  bool
	nodeID      = 127
	allocate    bool
	filesRoot   string
	targetNode  int
	callTimeout = 2 * time.Second

	// commands
	commands = []*ishell.Cmd{
		&NodesCmd,
		&TargetCmd,
		&ConnectCmd,
		&DisconnectCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.IntVar(&nodeID, "node-id", nodeID, "Node ID of the management node.")
	flag.BoolVar(&allocate, "allocator", allocate, "Serve dynamic node ID allocation.")
	flag.StringVar(&filesRoot, "files", filesRoot, "Serve firmware images from this directory.")
	flag.IntVar(&targetNode, "target", targetNode, "Target node ID.")
	flag.DurationVar(&callTimeout, "timeout", callTimeout, "Request timeout.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(flags *config.Flags) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     callTimeout,

		Shell: ishell.New(),
		Flags: flags,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustHaveTarget wraps command func requires a connection and a target.
func MustHaveTarget(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := ShellFrom(c)
		if s.Bus == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		if s.Target == 0 {
			c.Err(fmt.Errorf("no target node, use target NODE_ID"))
			return
		}
		fn(c)
	}
}

// Call sends a request to the target and waits for the response.
func Call(c *ishell.Context, typ dsdl.Type, req, resp dsdl.Message) error {
	s := ShellFrom(c)
	if s.Bus == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return err
	}
	ctx, cancel := context.WithTimeout(s.Bus.Ctx, s.Timeout)
	defer cancel()
	if err := s.Bus.Manager.Call(ctx, s.Target, typ, req, resp); err != nil {
		c.Err(fmt.Errorf("%s: %v", typ.Name, err))
		return err
	}
	return nil
}

// Print prints a value in JSON or plain form.
func Print(c *ishell.Context, v interface{}) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Printf("%s %+v\n", reflect.Indirect(reflect.ValueOf(v)).Type().Name(), reflect.Indirect(reflect.ValueOf(v)).Interface())
}

// Connect joins the bus at busURL.
func (s *Shell) Connect(busURL string) error {
	driver, err := drivers.Open(busURL, fmt.Sprintf("canocli-%d", os.Getpid()))
	if err != nil {
		return err
	}
	m, err := peer.NewManager(driver, uint8(nodeID))
	if err != nil {
		driver.Close()
		return err
	}
	if allocate {
		m.Allocator = peer.NewAllocator()
	}
	if filesRoot != "" {
		m.Files = &peer.FileServer{Root: filesRoot}
	}
	bus := &BusLoop{URL: busURL, Manager: m, Loop: fx.NewLoop()}
	bus.Ctx, bus.Cancel = context.WithCancel(context.Background())
	bus.Loop.Add(m)
	s.Disconnect()
	s.Bus = bus
	go func() {
		bus.Loop.Run(bus.Ctx)
		driver.Close()
	}()
	s.updatePrompt()
	return nil
}

// Disconnect leaves the bus.
func (s *Shell) Disconnect() {
	if s.Bus != nil {
		s.Bus.Cancel()
		s.Bus = nil
		s.updatePrompt()
	}
}

// SetTarget selects the node receiving requests.
func (s *Shell) SetTarget(id uint8) {
	s.Target = id
	s.updatePrompt()
}

func (s *Shell) updatePrompt() {
	switch {
	case s.Bus == nil:
		s.Shell.SetPrompt(unconnectedPrompt)
	case s.Target == 0:
		s.Shell.SetPrompt(fmt.Sprintf("[%s] > ", s.Bus.URL))
	default:
		s.Shell.SetPrompt(fmt.Sprintf("[%s] node %d > ", s.Bus.URL, s.Target))
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	cfg, err := s.Flags.Load()
	if err != nil {
		log.Fatalln(err)
	}
	if err := s.Connect(cfg.BusURL); err != nil {
		log.Fatalf("connect %q failed: %v", cfg.BusURL, err)
	}
	if targetNode > 0 {
		s.SetTarget(uint8(targetNode))
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// ParseNodeID parses a node ID in 1..127.
func ParseNodeID(arg string) (uint8, error) {
	n, err := strconv.ParseUint(arg, 0, 8)
	if err != nil || n < 1 || n > 127 {
		return 0, fmt.Errorf("invalid node ID %q", arg)
	}
	return uint8(n), nil
}

var (
	// NodesCmd lists nodes announcing themselves.
	NodesCmd = ishell.Cmd{
		Name:    "nodes",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.Bus == nil {
				c.Err(fmt.Errorf("not connected"))
				return
			}
			nodes := s.Bus.Manager.Nodes()
			if s.OutputJSON {
				Print(c, nodes)
				return
			}
			if len(nodes) == 0 {
				c.Println("No nodes found")
				return
			}
			for _, n := range nodes {
				c.Printf("%3d  health=%d mode=%d uptime=%ds vssc=%d\n",
					n.NodeID, n.Status.Health, n.Status.Mode, n.Status.UptimeSec, n.Status.VendorSpecificStatusCode)
			}
		},
	}

	// TargetCmd selects the target node.
	TargetCmd = ishell.Cmd{
		Name:    "target",
		Aliases: []string{"t"},
		Help:    "NODE_ID",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("NODE_ID required"))
				return
			}
			id, err := ParseNodeID(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			ShellFrom(c).SetTarget(id)
		},
	}

	// ConnectCmd joins a bus.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "BUS_URL",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("BUS_URL required"))
				return
			}
			if err := ShellFrom(c).Connect(c.Args[0]); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd leaves the bus.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(config.DefaultFlags()).Run(flag.Args()...)
}
