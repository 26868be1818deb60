package machine

// PrefetchQueueSize is the BIU's instruction queue capacity (6, per the
// distilled spec's external interface constants).
const PrefetchQueueSize = 6

// BIU is the Bus Interface Unit: it owns the segment registers, the
// architectural IP, the independent prefetch cursor, and the bounded
// instruction queue. Grounded directly on
// original_source/emulator/pipeline_units/bus_interface_unit.py, with
// queue.Queue replaced by a plain Go slice used as a FIFO.
type BIU struct {
	memory *Memory

	CS, DS, SS, ES uint16
	IP             uint16
	PreFetchIP     uint16

	queue []InstrSlot
}

// NewBIU constructs a BIU over memory with the given initial segment bases
// and entry IP.
func NewBIU(memory *Memory, cs, ds, ss, es, ip uint16) *BIU {
	return &BIU{
		memory: memory,
		CS:     cs,
		DS:     ds,
		SS:     ss,
		ES:     es,
		IP:     ip,
		PreFetchIP: ip,
	}
}

// CSIP returns the physical address of the architectural CS:IP pair.
func (b *BIU) CSIP() int {
	return int(b.CS)*16 + int(b.IP)
}

// csPreIP returns the physical address of CS:pre_fetch_ip.
func (b *BIU) csPreIP() int {
	return int(b.CS)*16 + int(b.PreFetchIP)
}

// Flush discards all queued instructions and resets the prefetch cursor to
// IP. Called whenever CS or IP is written by the EU (SPEC_FULL.md §3
// invariant 5).
func (b *BIU) Flush() {
	b.queue = b.queue[:0]
	b.PreFetchIP = b.IP
}

// RemainingInstruction reports whether the slot at the prefetch cursor holds
// an instruction; an empty cell or a data byte both count as none.
func (b *BIU) RemainingInstruction() bool {
	slot, err := b.memory.ReadSlot(b.csPreIP())
	if err != nil {
		return false
	}
	_, ok := slot.(InstrSlot)
	return ok
}

// QueueEmpty reports whether the prefetch queue currently holds no
// instructions.
func (b *BIU) QueueEmpty() bool {
	return len(b.queue) == 0
}

// Run fills the prefetch queue while at least two slots remain free and
// more instructions are available, matching the source's "qsize() <=
// maxsize-2" refill threshold.
func (b *BIU) Run() error {
	for len(b.queue) <= PrefetchQueueSize-2 {
		if b.memory.IsEmpty(b.csPreIP()) {
			break
		}
		before := len(b.queue)
		if err := b.fetchOne(); err != nil {
			return err
		}
		if len(b.queue) == before {
			break
		}
	}
	return nil
}

func (b *BIU) fetchOne() error {
	slot, err := b.memory.ReadSlot(b.csPreIP())
	if err != nil {
		return err
	}
	instr, ok := slot.(InstrSlot)
	if !ok {
		// Memory holds a data byte at this address: nothing further to
		// fetch as code. Treat it the same as "no remaining instruction".
		return nil
	}
	b.queue = append(b.queue, instr)
	b.PreFetchIP++
	return nil
}

// NextInstruction dequeues the instruction at the head of the prefetch
// queue, advancing nothing else; callers (the EU) are responsible for
// advancing IP.
func (b *BIU) NextInstruction() (InstrSlot, bool) {
	if len(b.queue) == 0 {
		return InstrSlot{}, false
	}
	instr := b.queue[0]
	b.queue = b.queue[1:]
	return instr, true
}

// PeekInstruction returns the head of the queue without dequeuing it, used
// for trace output ("Next instruction").
func (b *BIU) PeekInstruction() (InstrSlot, bool) {
	if len(b.queue) == 0 {
		return InstrSlot{}, false
	}
	return b.queue[0], true
}

// ReadByte/ReadWord/ReadDWord/WriteByte/WriteWord/WriteDWord forward to
// memory; the BIU is the sole owner of memory access from the EU's point of
// view, mirroring the source's EU always going through self.bus.
func (b *BIU) ReadByte(loc int) (uint8, error)   { return b.memory.ReadByte(loc) }
func (b *BIU) ReadWord(loc int) (uint16, error)  { return b.memory.ReadWord(loc) }
func (b *BIU) ReadDWord(loc int) (uint32, error) { return b.memory.ReadDWord(loc) }
func (b *BIU) WriteByte(loc int, v uint8) error  { return b.memory.WriteByte(loc, v) }
func (b *BIU) WriteWord(loc int, v uint16) error { return b.memory.WriteWord(loc, v) }
func (b *BIU) WriteDWord(loc int, v uint32) error {
	return b.memory.WriteDWord(loc, v)
}

// SegmentValue returns the current value of a segment register by name.
func (b *BIU) SegmentValue(name string) uint16 {
	switch name {
	case "CS":
		return b.CS
	case "DS":
		return b.DS
	case "SS":
		return b.SS
	case "ES":
		return b.ES
	default:
		return 0
	}
}

// SetSegmentValue writes a segment register by name. Writing CS flushes the
// prefetch queue, per the pipeline-flush invariant; callers that also write
// IP in the same operation should call Flush once afterward rather than
// rely on this for IP writes.
func (b *BIU) SetSegmentValue(name string, v uint16) {
	switch name {
	case "CS":
		b.CS = v
		b.Flush()
	case "DS":
		b.DS = v
	case "SS":
		b.SS = v
	case "ES":
		b.ES = v
	}
}

// SetIP writes the architectural IP and flushes the prefetch queue.
func (b *BIU) SetIP(v uint16) {
	b.IP = v
	b.Flush()
}
