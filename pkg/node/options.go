package node

import (
	"math/rand"
	"time"

	"github.com/robotalks/canode/pkg/can"
	"github.com/robotalks/canode/pkg/node/handoff"
	"github.com/robotalks/canode/pkg/node/params"
	"github.com/robotalks/canode/pkg/transport"
)

// DefaultNodeIDParam names the parameter holding a static node ID.
const DefaultNodeIDParam = "NODEID"

// Clock provides the engine time.
type Clock interface {
	Now() time.Time
}

// ClockFunc is the func form of Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Restarter performs the hard reset. A nil error means the reset is
// under way and the engine must not be cycled anymore.
type Restarter interface {
	Restart() error
}

// RestartFunc is the func form of Restarter.
type RestartFunc func() error

// Restart implements Restarter.
func (f RestartFunc) Restart() error { return f() }

// Indicator is the status LED toggled by the 1 Hz pass.
type Indicator interface {
	Toggle()
}

// IndicatorFunc is the func form of Indicator.
type IndicatorFunc func()

// Toggle implements Indicator.
func (f IndicatorFunc) Toggle() { f() }

// ImageSink receives a pulled firmware image.
type ImageSink interface {
	WriteChunk(offset uint64, data []byte) error
	Commit(size uint64) error
}

// ImageAborter is implemented by sinks which discard a partial image
// when the transfer fails.
type ImageAborter interface {
	Abort() error
}

// Options configures an Engine. Only Driver is required.
type Options struct {
	Identity   Identity
	Parameters []params.Parameter
	Storage    params.Storage
	SetPolicy  params.SetPolicy
	// DeferRemotePersist keeps remote parameter writes in memory until
	// an explicit save opcode. By default each write is persisted.
	DeferRemotePersist bool
	// NodeIDParam names the static node ID parameter.
	NodeIDParam string

	Driver    can.Driver
	Clock     Clock
	Rand      *rand.Rand
	Restarter Restarter
	Handoff   handoff.Store
	Image     ImageSink
	Indicator Indicator

	// OnReceive sees every accepted transfer before the engine.
	OnReceive transport.Handler
	// Accept admits application types besides the management ones.
	Accept transport.AcceptFilter

	// RequireRestartMagic refuses RestartNode requests without the
	// standard magic number. By default any request restarts the node.
	RequireRestartMagic bool
}
