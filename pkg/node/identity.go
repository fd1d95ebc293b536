package node

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/robotalks/canode/pkg/dsdl"
)

// DefaultPreferredNodeID is requested from the allocator when the
// identity doesn't name one.
const DefaultPreferredNodeID = 69

// UniqueIDSize is the length of the hardware unique ID.
const UniqueIDSize = 16

// UniqueID is the globally unique hardware identifier.
type UniqueID [UniqueIDSize]byte

// ParseUniqueID parses up to 32 hex digits, separators ignored,
// zero padded on the right.
func ParseUniqueID(s string) (id UniqueID, err error) {
	s = strings.NewReplacer(":", "", "-", "", " ", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid unique ID: %w", err)
	}
	if len(data) > UniqueIDSize {
		return id, fmt.Errorf("unique ID longer than %d bytes", UniqueIDSize)
	}
	copy(id[:], data)
	return id, nil
}

func (id UniqueID) String() string {
	return hex.EncodeToString(id[:])
}

// Version is a major.minor pair.
type Version struct {
	Major uint8
	Minor uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Identity describes the node on the bus.
type Identity struct {
	UniqueID        UniqueID
	PreferredNodeID uint8
	Name            string
	SoftwareVersion Version
	HardwareVersion Version
	// VCSCommit is reported in GetNodeInfo when non-zero.
	VCSCommit uint32
}

func (id *Identity) normalize() {
	if id.PreferredNodeID == 0 || id.PreferredNodeID > 127 {
		id.PreferredNodeID = DefaultPreferredNodeID
	}
	if len(id.Name) > dsdl.NodeNameMaxLength {
		id.Name = id.Name[:dsdl.NodeNameMaxLength]
	}
}
