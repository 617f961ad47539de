package simdplan

import "fmt"

// Identifiers are dense integers indexing into parallel backing arrays. They
// are stable for the lifetime of a planning run: an RGraph never back-patches
// or renumbers once a node or tensor has been appended.

// RNodeId identifies a node of the reference graph.
type RNodeId int

// RTensorId identifies a tensor of the reference graph.
type RTensorId int

// OpId identifies an entry in the operator catalog.
type OpId int

// PlaceholderId identifies a named input parameter.
type PlaceholderId int

// ParameterId identifies a named model parameter (GetAttr target).
type ParameterId int

// HoareTripleId identifies a triple inside an IndexedHoareTripleSet.
type HoareTripleId int

func (id RNodeId) String() string       { return fmt.Sprintf("n%d", int(id)) }
func (id RTensorId) String() string     { return fmt.Sprintf("t%d", int(id)) }
func (id OpId) String() string          { return fmt.Sprintf("op%d", int(id)) }
func (id PlaceholderId) String() string { return fmt.Sprintf("ph%d", int(id)) }
func (id ParameterId) String() string   { return fmt.Sprintf("param%d", int(id)) }
func (id HoareTripleId) String() string { return fmt.Sprintf("triple%d", int(id)) }
