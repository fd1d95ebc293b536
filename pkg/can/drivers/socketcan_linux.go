package drivers

import (
	"github.com/robotalks/canode/pkg/can"
	"github.com/robotalks/canode/pkg/can/socketcan"
)

func openSocketCAN(ifname string) (can.Driver, error) {
	return socketcan.Open(ifname)
}
