package node

import (
	"github.com/golang/glog"

	"github.com/robotalks/canode/pkg/dsdl"
	"github.com/robotalks/canode/pkg/node/handoff"
	"github.com/robotalks/canode/pkg/node/params"
	"github.com/robotalks/canode/pkg/transport"
)

func (e *Engine) handleGetNodeInfo(xfer *transport.RxTransfer) {
	resp := dsdl.GetNodeInfoResponse{
		Status: e.nodeStatus(e.clock.Now()),
		SoftwareVersion: dsdl.SoftwareVersion{
			Major:     e.identity.SoftwareVersion.Major,
			Minor:     e.identity.SoftwareVersion.Minor,
			VCSCommit: e.identity.VCSCommit,
		},
		HardwareVersion: dsdl.HardwareVersion{
			Major:    e.identity.HardwareVersion.Major,
			Minor:    e.identity.HardwareVersion.Minor,
			UniqueID: e.identity.UniqueID,
		},
		Name: e.identity.Name,
	}
	if e.identity.VCSCommit != 0 {
		resp.SoftwareVersion.OptionalFieldFlags = dsdl.SoftwareVersionVCSCommit
	}
	e.respond(xfer, dsdl.TypeGetNodeInfo, &resp)
}

// handleParamGetSet always answers. A missing parameter is answered
// with an empty name and value.
func (e *Engine) handleParamGetSet(xfer *transport.RxTransfer) {
	var req dsdl.ParamGetSetRequest
	if err := req.Decode(xfer.Payload); err != nil {
		glog.V(2).Infof("GetSet from %d: %v", xfer.Source, err)
		return
	}
	var resp dsdl.ParamGetSetResponse
	index, found := e.params.Find(req.Name, int(req.Index))
	if found {
		if v, ok := req.Value.Float32(); ok {
			e.setRemote(index, v)
		}
		p, _ := e.params.At(index)
		resp = paramResponse(&p)
	}
	e.respond(xfer, dsdl.TypeParamGetSet, &resp)
}

func (e *Engine) setRemote(index int, v float32) {
	if _, err := e.params.SetAt(index, v); err != nil {
		p, _ := e.params.At(index)
		glog.Warningf("param %s: set %v: %v", p.Name, v, err)
		return
	}
	if e.opts.DeferRemotePersist {
		return
	}
	if err := e.params.Persist(index); err != nil {
		glog.Warningf("param: %v", err)
	}
}

func paramResponse(p *params.Parameter) dsdl.ParamGetSetResponse {
	resp := dsdl.ParamGetSetResponse{Name: p.Name}
	tag := dsdl.ValueReal
	if p.Kind == params.Integer {
		tag = dsdl.ValueInteger
		resp.Value = dsdl.IntegerValue(int64(p.Value))
	} else {
		resp.Value = dsdl.RealValue(p.Value)
	}
	resp.MinValue = dsdl.NumericFrom(tag, p.Min)
	resp.MaxValue = dsdl.NumericFrom(tag, p.Max)
	return resp
}

func (e *Engine) handleParamExecuteOpcode(xfer *transport.RxTransfer) {
	var req dsdl.ParamExecuteOpcodeRequest
	if err := req.Decode(xfer.Payload); err != nil {
		glog.V(2).Infof("ExecuteOpcode from %d: %v", xfer.Source, err)
		return
	}
	switch req.Opcode {
	case dsdl.OpcodeErase:
		e.params.Erase()
		glog.Info("parameters erased")
	case dsdl.OpcodeSave:
		if err := e.params.Save(); err != nil {
			glog.Warningf("parameter save: %v", err)
		} else {
			glog.Info("parameters saved")
		}
	}
	e.respond(xfer, dsdl.TypeParamExecuteOpcode, &dsdl.ParamExecuteOpcodeResponse{OK: true})
}

func (e *Engine) handleRestartNode(xfer *transport.RxTransfer) {
	var req dsdl.RestartNodeRequest
	if err := req.Decode(xfer.Payload); err != nil {
		return
	}
	ok := e.opts.Restarter != nil
	if e.opts.RequireRestartMagic && req.MagicNumber != dsdl.RestartMagicNumber {
		ok = false
	}
	e.respond(xfer, dsdl.TypeRestartNode, &dsdl.RestartNodeResponse{OK: ok})
	if ok {
		e.pendingRestart = true
	}
}

// handleBeginFirmwareUpdate acknowledges the update and, when the
// node can restart, hands the request over to the next boot.
// Otherwise the image is pulled by this process.
func (e *Engine) handleBeginFirmwareUpdate(xfer *transport.RxTransfer) {
	var req dsdl.BeginFirmwareUpdateRequest
	if err := req.Decode(xfer.Payload); err != nil {
		return
	}
	resp := dsdl.BeginFirmwareUpdateResponse{Error: dsdl.FirmwareOK}
	switch {
	case e.fw.state.Phase == FirmwareRequesting:
		resp.Error = dsdl.FirmwareInProgress
	case req.ImagePath == "":
		resp.Error = dsdl.FirmwareUnknownError
		resp.ErrorMessage = "empty image path"
	}
	e.respond(xfer, dsdl.TypeBeginFirmwareUpdate, &resp)
	if resp.Error != dsdl.FirmwareOK {
		return
	}

	server := req.SourceNodeID
	if server == transport.BroadcastNodeID {
		server = xfer.Source
	}
	glog.Infof("firmware update requested by %d: %s from node %d", xfer.Source, req.ImagePath, server)
	h := &handoff.Handoff{ServerNodeID: server, MyNodeID: e.NodeID(), Path: req.ImagePath}
	if store := e.opts.Handoff; store != nil && e.opts.Restarter != nil {
		err := store.Save(h)
		if err == nil {
			e.pendingHandoff = h
			e.pendingRestart = true
			return
		}
		glog.Warningf("save handoff: %v, updating in place", err)
	}
	e.fw.begin(server, req.ImagePath)
}
