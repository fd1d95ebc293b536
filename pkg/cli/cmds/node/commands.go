// Package node provides shell commands for the node management
// services.
package node

import (
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/canode/pkg/cli/sh"
	"github.com/robotalks/canode/pkg/dsdl"
)

// ParamRef parses a parameter reference: a decimal index or a name.
func ParamRef(arg string) dsdl.ParamGetSetRequest {
	if index, err := strconv.ParseUint(arg, 10, 13); err == nil {
		return dsdl.ParamGetSetRequest{Index: uint16(index)}
	}
	return dsdl.ParamGetSetRequest{Name: arg}
}

// ParamValue parses a value, integers are sent as integers.
func ParamValue(arg string) (dsdl.Value, error) {
	if n, err := strconv.ParseInt(arg, 0, 64); err == nil {
		return dsdl.IntegerValue(n), nil
	}
	switch arg {
	case "true":
		return dsdl.Value{Tag: dsdl.ValueBoolean, Boolean: 1}, nil
	case "false":
		return dsdl.Value{Tag: dsdl.ValueBoolean}, nil
	}
	f, err := strconv.ParseFloat(arg, 32)
	if err != nil {
		return dsdl.Value{}, fmt.Errorf("invalid VALUE: %v", err)
	}
	return dsdl.RealValue(float32(f)), nil
}

// FormatValue prints a param value.
func FormatValue(v dsdl.Value) string {
	switch v.Tag {
	case dsdl.ValueInteger:
		return strconv.FormatInt(v.Integer, 10)
	case dsdl.ValueReal:
		return strconv.FormatFloat(float64(v.Real), 'g', -1, 32)
	case dsdl.ValueBoolean:
		return strconv.FormatBool(v.Boolean != 0)
	case dsdl.ValueString:
		return strconv.Quote(string(v.String))
	}
	return "-"
}

func formatNumeric(v dsdl.NumericValue) string {
	return FormatValue(dsdl.Value{Tag: v.Tag, Integer: v.Integer, Real: v.Real})
}

func printParam(c *ishell.Context, resp *dsdl.ParamGetSetResponse) {
	if sh.ShellFrom(c).OutputJSON {
		sh.Print(c, resp)
		return
	}
	c.Printf("%s = %s [%s, %s]\n", resp.Name, FormatValue(resp.Value), formatNumeric(resp.MinValue), formatNumeric(resp.MaxValue))
}

func executeOpcode(c *ishell.Context, opcode uint8) {
	var resp dsdl.ParamExecuteOpcodeResponse
	if sh.Call(c, dsdl.TypeParamExecuteOpcode, &dsdl.ParamExecuteOpcodeRequest{Opcode: opcode}, &resp) != nil {
		return
	}
	if resp.OK {
		c.Println("OK")
	} else {
		c.Err(fmt.Errorf("opcode %d failed", opcode))
	}
}

var (
	// InfoCmd exposes GetNodeInfo.
	InfoCmd = ishell.Cmd{
		Name:    "info",
		Aliases: []string{"i"},
		Help:    "",
		Func: sh.MustHaveTarget(func(c *ishell.Context) {
			var resp dsdl.GetNodeInfoResponse
			if sh.Call(c, dsdl.TypeGetNodeInfo, &dsdl.GetNodeInfoRequest{}, &resp) != nil {
				return
			}
			if sh.ShellFrom(c).OutputJSON {
				sh.Print(c, &resp)
				return
			}
			c.Printf("name:     %s\n", resp.Name)
			c.Printf("software: %d.%d commit=%08x\n", resp.SoftwareVersion.Major, resp.SoftwareVersion.Minor, resp.SoftwareVersion.VCSCommit)
			c.Printf("hardware: %d.%d uid=%x\n", resp.HardwareVersion.Major, resp.HardwareVersion.Minor, resp.HardwareVersion.UniqueID)
			c.Printf("status:   health=%d mode=%d uptime=%ds\n", resp.Status.Health, resp.Status.Mode, resp.Status.UptimeSec)
		}),
	}

	// ParamGetCmd reads a parameter.
	ParamGetCmd = ishell.Cmd{
		Name:    "param.get",
		Aliases: []string{"pg"},
		Help:    "INDEX|NAME",
		Func: sh.MustHaveTarget(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("INDEX or NAME required"))
				return
			}
			req := ParamRef(c.Args[0])
			var resp dsdl.ParamGetSetResponse
			if sh.Call(c, dsdl.TypeParamGetSet, &req, &resp) != nil {
				return
			}
			if resp.Name == "" {
				c.Err(fmt.Errorf("parameter %s not found", c.Args[0]))
				return
			}
			printParam(c, &resp)
		}),
	}

	// ParamSetCmd writes a parameter.
	ParamSetCmd = ishell.Cmd{
		Name:    "param.set",
		Aliases: []string{"ps"},
		Help:    "INDEX|NAME VALUE",
		Func: sh.MustHaveTarget(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("INDEX or NAME and VALUE required"))
				return
			}
			req := ParamRef(c.Args[0])
			val, err := ParamValue(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			req.Value = val
			var resp dsdl.ParamGetSetResponse
			if sh.Call(c, dsdl.TypeParamGetSet, &req, &resp) != nil {
				return
			}
			if resp.Name == "" {
				c.Err(fmt.Errorf("parameter %s not found", c.Args[0]))
				return
			}
			printParam(c, &resp)
		}),
	}

	// ParamListCmd reads parameters by index until the first empty
	// response.
	ParamListCmd = ishell.Cmd{
		Name:    "param.list",
		Aliases: []string{"pl"},
		Help:    "",
		Func: sh.MustHaveTarget(func(c *ishell.Context) {
			for index := uint16(0); index < 1<<13; index++ {
				var resp dsdl.ParamGetSetResponse
				if sh.Call(c, dsdl.TypeParamGetSet, &dsdl.ParamGetSetRequest{Index: index}, &resp) != nil {
					return
				}
				if resp.Name == "" {
					return
				}
				printParam(c, &resp)
			}
		}),
	}

	// ParamSaveCmd persists all parameters.
	ParamSaveCmd = ishell.Cmd{
		Name: "param.save",
		Help: "",
		Func: sh.MustHaveTarget(func(c *ishell.Context) {
			executeOpcode(c, dsdl.OpcodeSave)
		}),
	}

	// ParamEraseCmd resets all parameters.
	ParamEraseCmd = ishell.Cmd{
		Name: "param.erase",
		Help: "",
		Func: sh.MustHaveTarget(func(c *ishell.Context) {
			executeOpcode(c, dsdl.OpcodeErase)
		}),
	}

	// RestartCmd exposes RestartNode.
	RestartCmd = ishell.Cmd{
		Name: "restart",
		Help: "",
		Func: sh.MustHaveTarget(func(c *ishell.Context) {
			var resp dsdl.RestartNodeResponse
			if sh.Call(c, dsdl.TypeRestartNode, &dsdl.RestartNodeRequest{MagicNumber: dsdl.RestartMagicNumber}, &resp) != nil {
				return
			}
			if !resp.OK {
				c.Err(fmt.Errorf("restart refused"))
				return
			}
			c.Println("OK")
		}),
	}

	// UpdateCmd exposes BeginFirmwareUpdate. The image is served by
	// this shell unless SOURCE_NODE_ID names another file server.
	UpdateCmd = ishell.Cmd{
		Name:    "update",
		Aliases: []string{"fw"},
		Help:    "PATH [SOURCE_NODE_ID]",
		Func: sh.MustHaveTarget(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("PATH required"))
				return
			}
			req := dsdl.BeginFirmwareUpdateRequest{ImagePath: c.Args[0]}
			if len(c.Args) > 1 {
				id, err := sh.ParseNodeID(c.Args[1])
				if err != nil {
					c.Err(err)
					return
				}
				req.SourceNodeID = id
			}
			var resp dsdl.BeginFirmwareUpdateResponse
			if sh.Call(c, dsdl.TypeBeginFirmwareUpdate, &req, &resp) != nil {
				return
			}
			if resp.Error != dsdl.FirmwareOK {
				c.Err(fmt.Errorf("update refused: error %d %s", resp.Error, resp.ErrorMessage))
				return
			}
			c.Println("OK")
		}),
	}

	// AllocationsCmd lists the node IDs served by this shell.
	AllocationsCmd = ishell.Cmd{
		Name:    "allocations",
		Aliases: []string{"alloc"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			if s.Bus == nil || s.Bus.Manager.Allocator == nil {
				c.Err(fmt.Errorf("allocator not enabled"))
				return
			}
			list := s.Bus.Manager.Allocator.Allocations()
			if s.OutputJSON {
				sh.Print(c, list)
				return
			}
			for _, a := range list {
				c.Printf("%3d  %s\n", a.NodeID, a.UniqueID)
			}
		},
	}
)

func init() {
	sh.AddCmds(
		&InfoCmd,
		&ParamGetCmd,
		&ParamSetCmd,
		&ParamListCmd,
		&ParamSaveCmd,
		&ParamEraseCmd,
		&RestartCmd,
		&UpdateCmd,
		&AllocationsCmd,
	)
}
