// Package params is the node's parameter store: a list of named,
// bounded values declared at startup, loaded from and saved to a
// byte-addressable non-volatile storage.
package params

import (
	"errors"
	"fmt"
	"math"
)

// Kind is the declared type of a parameter. Values match the
// uavcan.protocol.param.Value union tags.
type Kind uint8

// Parameter kinds.
const (
	Integer Kind = 1
	Real    Kind = 2
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Real:
		return "real"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind parses "integer"/"int" and "real"/"float".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "integer", "int":
		return Integer, nil
	case "real", "float":
		return Real, nil
	}
	return 0, fmt.Errorf("unknown parameter kind %q", s)
}

// NameMaxLength is the longest name carried by param.GetSet.
const NameMaxLength = 92

var (
	// ErrNotFound indicates no parameter with the name or index.
	ErrNotFound = errors.New("params: not found")
	// ErrOutOfRange indicates a rejected value outside [min, max].
	ErrOutOfRange = errors.New("params: value out of range")
	// ErrDuplicateName indicates two declarations with one name.
	ErrDuplicateName = errors.New("params: duplicate name")
)

// Parameter is one declared value. Every value is held as float32,
// integers included.
type Parameter struct {
	Name  string
	Kind  Kind
	Value float32
	Min   float32
	Max   float32
}

// InRange reports whether min <= v <= max.
func (p *Parameter) InRange(v float32) bool {
	return v >= p.Min && v <= p.Max
}

func (p *Parameter) validate() error {
	switch {
	case p.Name == "":
		return errors.New("params: empty name")
	case len(p.Name) > NameMaxLength:
		return fmt.Errorf("params: name %q too long", p.Name)
	case p.Kind != Integer && p.Kind != Real:
		return fmt.Errorf("params: %s: invalid kind %d", p.Name, p.Kind)
	case p.Min > p.Max:
		return fmt.Errorf("params: %s: min %v > max %v", p.Name, p.Min, p.Max)
	}
	return nil
}

// SetPolicy decides what a remote set does with an out of range value.
type SetPolicy int

// Set policies.
const (
	// PolicyAccept stores any value unchecked.
	PolicyAccept SetPolicy = iota
	// PolicyClamp limits the value to [min, max].
	PolicyClamp
	// PolicyReject leaves the parameter unchanged.
	PolicyReject
)

// ParsePolicy parses "accept", "clamp" or "reject".
func ParsePolicy(s string) (SetPolicy, error) {
	switch s {
	case "", "accept":
		return PolicyAccept, nil
	case "clamp":
		return PolicyClamp, nil
	case "reject":
		return PolicyReject, nil
	}
	return PolicyAccept, fmt.Errorf("unknown set policy %q", s)
}

func (s SetPolicy) String() string {
	switch s {
	case PolicyAccept:
		return "accept"
	case PolicyClamp:
		return "clamp"
	case PolicyReject:
		return "reject"
	}
	return fmt.Sprintf("policy(%d)", int(s))
}

// Apply maps a requested value for p under the policy.
func (s SetPolicy) Apply(p *Parameter, v float32) (float32, error) {
	if p.InRange(v) || s == PolicyAccept {
		return v, nil
	}
	if s == PolicyReject || math.IsNaN(float64(v)) {
		return p.Value, ErrOutOfRange
	}
	if v < p.Min {
		return p.Min, nil
	}
	return p.Max, nil
}
