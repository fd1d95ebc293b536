// Package drivers opens a can.Driver from a bus URL.
package drivers

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/robotalks/canode/pkg/can"
	"github.com/robotalks/canode/pkg/can/mqtt"
	"github.com/robotalks/canode/pkg/can/stream"
	"github.com/robotalks/canode/pkg/can/websocket"
)

// Open creates the driver for busURL. Supported schemes:
//
//   tcp://host:port        stream hub
//   ws://host:port/path    websocket hub
//   mqtt://broker/prefix/  MQTT topic
//   socketcan://can0       Linux SocketCAN
//   virtual://name         in-process VirtualBus
//
// origin names this endpoint on shared carriers. Drivers which also
// implement fx.Runnable must be run for frames to be received.
func Open(busURL, origin string) (can.Driver, error) {
	u, err := url.Parse(busURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "tcp":
		return stream.Dial(u.Host, origin)
	case "ws", "wss":
		return websocket.Dial(busURL, origin)
	case "mqtt", "ssl", "tls":
		return mqtt.Dial(busURL, origin)
	case "socketcan", "can":
		return openSocketCAN(u.Host)
	case "virtual":
		return VirtualBus(u.Host).Attach(origin), nil
	default:
		return nil, fmt.Errorf("unsupported bus scheme %q", u.Scheme)
	}
}

var (
	virtualLock  sync.Mutex
	virtualBuses = make(map[string]*can.VirtualBus)
)

// VirtualBus returns the process wide VirtualBus named name.
func VirtualBus(name string) *can.VirtualBus {
	virtualLock.Lock()
	defer virtualLock.Unlock()
	bus := virtualBuses[name]
	if bus == nil {
		bus = can.NewVirtualBus()
		virtualBuses[name] = bus
	}
	return bus
}
