package params

import (
	"fmt"

	"github.com/golang/glog"

	fx "github.com/robotalks/canode/pkg/framework"
)

// Store holds the declared parameters. Lookups by name are durable,
// indices only within one build.
type Store struct {
	Policy SetPolicy

	params  []Parameter
	names   map[string]int
	storage Storage
}

// NewStore declares the parameter list backed by storage.
func NewStore(list []Parameter, storage Storage) (*Store, error) {
	s := &Store{
		params:  make([]Parameter, len(list)),
		names:   make(map[string]int, len(list)),
		storage: storage,
	}
	if s.storage == nil {
		s.storage = NewMemStorage(len(list) * SlotSize)
	}
	for i, p := range list {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, exist := s.names[p.Name]; exist {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, p.Name)
		}
		s.names[p.Name] = i
		s.params[i] = p
	}
	return s, nil
}

// Len returns the number of parameters.
func (s *Store) Len() int {
	return len(s.params)
}

// At returns the parameter at index.
func (s *Store) At(index int) (Parameter, bool) {
	if index < 0 || index >= len(s.params) {
		return Parameter{}, false
	}
	return s.params[index], true
}

// All returns a copy of every parameter.
func (s *Store) All() []Parameter {
	return append([]Parameter(nil), s.params...)
}

// Lookup finds the index of name.
func (s *Store) Lookup(name string) (int, bool) {
	i, ok := s.names[name]
	return i, ok
}

// Find resolves a request: a non-empty name is tried first, then the
// index.
func (s *Store) Find(name string, index int) (int, bool) {
	if name != "" {
		if i, ok := s.names[name]; ok {
			return i, true
		}
	}
	if index >= 0 && index < len(s.params) {
		return index, true
	}
	return -1, false
}

// Get reads a value by name.
func (s *Store) Get(name string) (float32, error) {
	i, ok := s.names[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.params[i].Value, nil
}

// Set writes a value by name. Local writes are not range checked.
func (s *Store) Set(name string, v float32) error {
	i, ok := s.names[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s.params[i].Value = v
	return nil
}

// SetAt applies a remote write under Policy and returns the value now
// held. A rejected write returns ErrOutOfRange.
func (s *Store) SetAt(index int, v float32) (float32, error) {
	if index < 0 || index >= len(s.params) {
		return 0, ErrNotFound
	}
	p := &s.params[index]
	nv, err := s.Policy.Apply(p, v)
	if err != nil {
		return p.Value, err
	}
	if nv != v {
		glog.V(2).Infof("param %s: %v clamped to %v", p.Name, v, nv)
	}
	p.Value = nv
	return nv, nil
}

// Load reads persisted values. Slots never written keep the declared
// value.
func (s *Store) Load() {
	for i := range s.params {
		if v, ok := readSlot(s.storage, i); ok {
			s.params[i].Value = v
		}
	}
}

// Persist writes one parameter to storage.
func (s *Store) Persist(index int) error {
	if index < 0 || index >= len(s.params) {
		return ErrNotFound
	}
	if err := writeSlot(s.storage, index, s.params[index].Value); err != nil {
		return fmt.Errorf("persist %s: %w", s.params[index].Name, err)
	}
	return nil
}

// Save writes every parameter, collecting failures.
func (s *Store) Save() error {
	var errs fx.AggregatedError
	for i := range s.params {
		errs.Add(s.Persist(i))
	}
	return errs.Aggregate()
}

// Erase resets every value to its minimum, the only default a
// declaration carries. Storage is untouched until Save.
func (s *Store) Erase() {
	for i := range s.params {
		s.params[i].Value = s.params[i].Min
	}
}
