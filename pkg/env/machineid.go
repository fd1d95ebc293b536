// Package env derives host specific node settings.
package env

import (
	"encoding/hex"
	"fmt"

	"github.com/denisbrodbeck/machineid"

	"github.com/robotalks/canode/pkg/node"
)

// DefaultApp keys the machine ID hash.
const DefaultApp = "canode"

// UniqueID derives a node unique ID from the machine ID. The ID is
// hashed with app so that it doesn't leak the machine ID, different
// apps on one host get different IDs.
func UniqueID(app string) (node.UniqueID, error) {
	id, err := machineid.ProtectedID(app)
	if err != nil {
		return node.UniqueID{}, fmt.Errorf("machine ID: %w", err)
	}
	return uniqueIDFromHash(id)
}

func uniqueIDFromHash(hash string) (uid node.UniqueID, err error) {
	data, err := hex.DecodeString(hash)
	if err != nil {
		return uid, fmt.Errorf("machine ID: %w", err)
	}
	if len(data) < len(uid) {
		return uid, fmt.Errorf("machine ID: hash too short")
	}
	copy(uid[:], data)
	return uid, nil
}

// MustUniqueID is UniqueID for DefaultApp that panics on failure.
func MustUniqueID() node.UniqueID {
	uid, err := UniqueID(DefaultApp)
	if err != nil {
		panic(err)
	}
	return uid
}
