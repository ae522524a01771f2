package vmm

import "abos/kernel/mm"

// uninitializedEntry is the value stored in every entry of a table handed
// out by SimulatedTables before the walker touches it.
const uninitializedEntry = Entry(0xdeadbeefdeadbeef)

// SimulatedTables keeps a page table hierarchy in ordinary Go memory, indexed
// by the physical frame that would back each table. Tables for frames that
// have not been seen before are filled with junk, as freshly allocated RAM
// would be. It allows the page table code to run outside the kernel.
type SimulatedTables struct {
	root    Table
	tables  map[mm.Frame]*Table
	flushed []uintptr
}

// NewSimulatedTables returns a hierarchy with an empty level 4 table.
func NewSimulatedTables() *SimulatedTables {
	return &SimulatedTables{
		tables: make(map[mm.Frame]*Table),
	}
}

// Root returns the level 4 table.
func (s *SimulatedTables) Root() *Table {
	return &s.root
}

// Child returns the table stored in frame.
func (s *SimulatedTables) Child(_ *Table, _ uint, frame mm.Frame) *Table {
	if t, ok := s.tables[frame]; ok {
		return t
	}

	t := new(Table)
	for i := range t {
		t[i] = uninitializedEntry
	}
	s.tables[frame] = t
	return t
}

// FlushTLBEntry records virtAddr as flushed.
func (s *SimulatedTables) FlushTLBEntry(virtAddr uintptr) {
	s.flushed = append(s.flushed, virtAddr)
}

// TableCount returns the number of tables below the root.
func (s *SimulatedTables) TableCount() int {
	return len(s.tables)
}

// Flushed returns the addresses passed to FlushTLBEntry in call order.
func (s *SimulatedTables) Flushed() []uintptr {
	return s.flushed
}
