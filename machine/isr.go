package machine

import (
	"embed"

	"github.com/pkg/errors"
)

//go:embed isrsrc/*.asm
var isrSources embed.FS

// isrBase is the fixed code segment every IVT entry points into: entry i's
// handler offset is isrSlotSize*i within this segment. Only a handful of
// vectors carry real assembled code; the rest point at an empty slot: a
// fetch there yields no instruction, so the pipeline runs dry and the CPU
// stops rather than returning to whatever raised the interrupt.
const (
	isrBase     = 0x1000
	isrSlotSize = 0x100
	// isrDataBase is the paragraph address reserved for ISR stub data
	// segments: the 64 KiB window at physical 0x40000, which none of the
	// default user segments (DS=0x2000, CS=0x3000, SS=0x5000, ES=0x7000,
	// 64 KiB each) covers. Each stub gets its own isrSlotSize-byte-wide
	// window here, keyed by vector, so stub data never collides with
	// another stub's, with the IVT itself (addresses 0-0x3FF), with the
	// code region, or with a program loaded at the default segments.
	isrDataBase = 0x4000
)

// isrStub names the bundled assembly source for one supported interrupt
// vector.
type isrStub struct {
	vector int
	file   string
}

var isrStubs = []isrStub{
	{0, "isr0.asm"},
	{1, "isr1.asm"},
	{2, "isr2.asm"},
	{3, "isr3.asm"},
	{4, "isr4.asm"},
	{0x7C, "isr7c.asm"},
}

// stubDataParagraph is the per-vector DS base a stub is assembled and
// relocated under: isrDataBase plus one isrSlotSize-byte-wide window per
// vector (isrSlotSize bytes == isrSlotSize/16 paragraphs), wide enough
// for the short diagnostic strings these stubs print.
func stubDataParagraph(vector int) uint16 {
	return uint16(isrDataBase + vector*(isrSlotSize/16))
}

// LoadInterruptVectorTable populates all 256 IVT entries (each: offset_lo,
// offset_hi, segment_lo, segment_hi) uniformly pointing at isrBase:i*isrSlotSize,
// then assembles and relocates the bundled stub sources for the supported
// vectors into memory at those addresses.
func LoadInterruptVectorTable(mem *Memory) error {
	for i := 0; i < 256; i++ {
		entry := i * 4
		if err := mem.WriteWord(entry, uint16(i*isrSlotSize)); err != nil {
			return errors.Wrapf(err, "writing IVT offset for vector %d", i)
		}
		if err := mem.WriteWord(entry+2, isrBase); err != nil {
			return errors.Wrapf(err, "writing IVT segment for vector %d", i)
		}
	}

	for _, stub := range isrStubs {
		src, err := isrSources.ReadFile("isrsrc/" + stub.file)
		if err != nil {
			return errors.Wrapf(err, "reading embedded ISR source %s", stub.file)
		}

		dsBase := stubDataParagraph(stub.vector)
		segs := map[string]uint16{"DS": dsBase, "CS": isrBase, "SS": 0, "ES": 0}
		prog, err := NewAssembler(segs).Assemble(string(src))
		if err != nil {
			return errors.Wrapf(err, "assembling ISR stub %s", stub.file)
		}

		img, ok := prog.Images["CS"]
		if !ok {
			return errors.Errorf("ISR stub %s produced no CS segment", stub.file)
		}
		base := int(isrBase)*16 + stub.vector*isrSlotSize
		length := prog.Symbols.SegmentLength["CS"]
		if err := mem.loadImageSlots(uint16(base/16), &SegmentImage{Slots: img.Slots}, length); err != nil {
			return errors.Wrapf(err, "relocating ISR stub %s code", stub.file)
		}

		if dsImg, ok := prog.Images["DS"]; ok {
			dsLength := prog.Symbols.SegmentLength["DS"]
			if err := mem.loadImageSlots(dsBase, dsImg, dsLength); err != nil {
				return errors.Wrapf(err, "relocating ISR stub %s data", stub.file)
			}
		}
	}
	return nil
}
