package gdt

// TaskStateSegment is the 104-byte long mode TSS. Its 64-bit fields start at
// offset 4 so the segment is stored as 32-bit words to avoid padding.
type TaskStateSegment [26]uint32

const (
	tssRSPWord  = 1
	tssISTWord  = 9
	tssIOPBWord = 25

	// tssSize is also written to the IOPB offset to indicate that the
	// segment carries no I/O permission bitmap.
	tssSize = 104
)

// NewTaskStateSegment returns a TSS without an I/O permission bitmap.
func NewTaskStateSegment() TaskStateSegment {
	var tss TaskStateSegment
	tss.SetIOPB(tssSize)
	return tss
}

// SetRSP sets the stack pointer loaded when entering the given ring.
func (t *TaskStateSegment) SetRSP(ring int, addr uint64) {
	t.set(tssRSPWord+2*ring, addr)
}

// RSP returns the stack pointer used when entering the given ring.
func (t *TaskStateSegment) RSP(ring int) uint64 {
	return t.get(tssRSPWord + 2*ring)
}

// SetIST sets the interrupt stack table slot index. Slot 0 corresponds to
// the hardware IST1 entry.
func (t *TaskStateSegment) SetIST(index int, addr uint64) {
	t.set(tssISTWord+2*index, addr)
}

// IST returns the address stored in interrupt stack table slot index.
func (t *TaskStateSegment) IST(index int) uint64 {
	return t.get(tssISTWord + 2*index)
}

// SetIOPB sets the offset of the I/O permission bitmap.
func (t *TaskStateSegment) SetIOPB(offset uint16) {
	t[tssIOPBWord] = uint32(offset) << 16
}

// IOPB returns the offset of the I/O permission bitmap.
func (t *TaskStateSegment) IOPB() uint16 {
	return uint16(t[tssIOPBWord] >> 16)
}

func (t *TaskStateSegment) set(word int, v uint64) {
	t[word] = uint32(v)
	t[word+1] = uint32(v >> 32)
}

func (t *TaskStateSegment) get(word int) uint64 {
	return uint64(t[word]) | uint64(t[word+1])<<32
}
