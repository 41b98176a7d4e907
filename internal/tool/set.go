package tool

import "fmt"

// Descriptor is the name and description a classifier chooses from.
type Descriptor struct {
	Name        string
	Description string
}

// Set is an ordered collection of uniquely named tools. Order is the order
// tools were added, which is the discovery order used to break ties.
// A Set is not safe for concurrent mutation.
type Set struct {
	tools []Tool
	index map[string]int
}

// NewSet builds a set from tools, failing on the first duplicate name.
func NewSet(tools ...Tool) (*Set, error) {
	s := &Set{index: make(map[string]int)}
	for _, t := range tools {
		if err := s.Add(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Set) Add(t Tool) error {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, exists := s.index[t.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrToolNameCollision, t.Name())
	}
	s.index[t.Name()] = len(s.tools)
	s.tools = append(s.tools, t)
	return nil
}

func (s *Set) Get(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.tools[i], true
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tools)
}

func (s *Set) Tools() []Tool {
	if s == nil {
		return nil
	}
	return append([]Tool(nil), s.tools...)
}

func (s *Set) Descriptors() []Descriptor {
	if s == nil {
		return nil
	}
	out := make([]Descriptor, len(s.tools))
	for i, t := range s.tools {
		out[i] = Descriptor{Name: t.Name(), Description: t.Description()}
	}
	return out
}
