package machine

import (
	"github.com/pkg/errors"
)

const (
	// MemorySize is the total addressable space: 1 MiB, addresses
	// 0 <= a < 2^20.
	MemorySize = 0x100000
	// SegmentSize is the size of one segment image: 64 KiB.
	SegmentSize = 0x10000
)

// Memory is the 1 MiB flat store shared by the BIU and EU. Each cell holds a
// Slot: nil (the unwritten sentinel, the Go analogue of the source's ['0']),
// a DataSlot (one data byte), or an InstrSlot (one whole symbolic
// instruction occupying exactly one address, per the slot-granular IP
// model). Reading/writing as bytes or words is meaningful only over DataSlot
// cells; instruction cells are only ever handled whole, by the BIU fetch
// path, never decomposed into bytes.
type Memory struct {
	cells []Slot // len MemorySize
}

// NewMemory returns a freshly zeroed, fully-unwritten memory image.
func NewMemory() *Memory {
	return &Memory{cells: make([]Slot, MemorySize)}
}

func (m *Memory) verify(loc int) error {
	if loc < 0 || loc >= MemorySize {
		return errors.Wrapf(ErrAddressRange, "location 0x%X", loc)
	}
	return nil
}

// IsEmpty reports whether location has never been written — the Go analogue
// of the source's Memory.is_null.
func (m *Memory) IsEmpty(loc int) bool {
	if loc < 0 || loc >= MemorySize {
		return true
	}
	return m.cells[loc] == nil
}

// ReadSlot returns the raw slot at loc for the BIU fetch path: nil (empty),
// a DataSlot, or an InstrSlot.
func (m *Memory) ReadSlot(loc int) (Slot, error) {
	if err := m.verify(loc); err != nil {
		return nil, err
	}
	return m.cells[loc], nil
}

// WriteSlot stores a raw slot at loc, used by segment-image/ISR loading.
func (m *Memory) WriteSlot(loc int, s Slot) error {
	if err := m.verify(loc); err != nil {
		return err
	}
	m.cells[loc] = s
	return nil
}

// ReadByte reads one data byte. Reading an unwritten location yields 0.
func (m *Memory) ReadByte(loc int) (uint8, error) {
	if err := m.verify(loc); err != nil {
		return 0, err
	}
	switch s := m.cells[loc].(type) {
	case nil:
		return 0, nil
	case DataSlot:
		return s.Byte, nil
	default:
		return 0, errors.Wrapf(ErrAddressRange, "location 0x%X does not hold data", loc)
	}
}

// WriteByte writes one data byte.
func (m *Memory) WriteByte(loc int, v uint8) error {
	if err := m.verify(loc); err != nil {
		return err
	}
	m.cells[loc] = DataSlot{Byte: v}
	return nil
}

// ReadWord reads a little-endian 16-bit word: low byte at loc, high at loc+1.
func (m *Memory) ReadWord(loc int) (uint16, error) {
	lo, err := m.ReadByte(loc)
	if err != nil {
		return 0, err
	}
	hi, err := m.ReadByte(loc + 1)
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

// WriteWord writes a little-endian 16-bit word.
func (m *Memory) WriteWord(loc int, v uint16) error {
	if err := m.WriteByte(loc, uint8(v&0xFF)); err != nil {
		return err
	}
	return m.WriteByte(loc+1, uint8(v>>8))
}

// ReadDWord reads a little-endian 32-bit value.
func (m *Memory) ReadDWord(loc int) (uint32, error) {
	lo, err := m.ReadWord(loc)
	if err != nil {
		return 0, err
	}
	hi, err := m.ReadWord(loc + 2)
	if err != nil {
		return 0, err
	}
	return uint32(lo) | uint32(hi)<<16, nil
}

// WriteDWord writes a little-endian 32-bit value.
func (m *Memory) WriteDWord(loc int, v uint32) error {
	if err := m.WriteWord(loc, uint16(v&0xFFFF)); err != nil {
		return err
	}
	return m.WriteWord(loc+2, uint16(v>>16))
}

// WriteBytes blits a raw byte slice starting at loc as sequential DataSlots.
func (m *Memory) WriteBytes(loc int, data []byte) error {
	for i, b := range data {
		if err := m.WriteByte(loc+i, b); err != nil {
			return err
		}
	}
	return nil
}

// LoadImage blits a SegmentImage into memory at base*16, the paragraph
// address convention used throughout this emulator. Unwritten slots are
// skipped so they remain the unwritten sentinel in memory too.
func (m *Memory) LoadImage(base uint16, img *SegmentImage) error {
	return m.loadImageSlots(base, img, SegmentSize)
}

// loadImageSlots blits only the first n slots of img, used by the ISR loader
// to relocate a stub whose assembled length is shorter than a full segment.
func (m *Memory) loadImageSlots(base uint16, img *SegmentImage, n int) error {
	addr := int(base) * 16
	for i := 0; i < n; i++ {
		s := img.Slots[i]
		if s == nil {
			continue
		}
		if err := m.WriteSlot(addr+i, s); err != nil {
			return err
		}
	}
	return nil
}
