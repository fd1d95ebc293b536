// +build !linux

package drivers

import (
	"errors"

	"github.com/robotalks/canode/pkg/can"
)

func openSocketCAN(string) (can.Driver, error) {
	return nil, errors.New("socketcan is only available on linux")
}
