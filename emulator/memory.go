package emulator

import (
	"fmt"

	"github.com/google/btree"
)

type Segment struct {
	Start uint64
	Prot  MemProt
	Data  []byte
}

func (s *Segment) End() uint64 {
	return s.Start + uint64(len(s.Data))
}

func (s *Segment) Contains(addr uint64) bool {
	return addr >= s.Start && addr < s.End()
}

// Memory is a segmented address space. Segments never overlap.
type Memory struct {
	tree *btree.BTreeG[*Segment]
}

func NewMemory() *Memory {
	return &Memory{tree: btree.NewG(8, func(a, b *Segment) bool {
		return a.Start < b.Start
	})}
}

func (m *Memory) Len() int {
	return m.tree.Len()
}

// Segments returns the mapped segments in ascending address order.
func (m *Memory) Segments() []*Segment {
	segments := make([]*Segment, 0, m.tree.Len())
	m.tree.Ascend(func(s *Segment) bool {
		segments = append(segments, s)
		return true
	})
	return segments
}

func (m *Memory) Insert(seg *Segment) error {
	if len(seg.Data) == 0 {
		return nil
	}
	if seg.Start+uint64(len(seg.Data)) < seg.Start {
		return fmt.Errorf("segment %#x+%#x: %w", seg.Start, len(seg.Data), ErrAddressOverflow)
	}
	if overlapping := m.overlapping(seg.Start, uint64(len(seg.Data))); len(overlapping) != 0 {
		starts := make([]uint64, len(overlapping))
		for i, s := range overlapping {
			starts[i] = s.Start
		}
		return &OverlapError{New: seg.Start, Overlapping: starts}
	}
	m.tree.ReplaceOrInsert(seg)
	return nil
}

func (m *Memory) Read(addr uint64) (byte, error) {
	seg, err := m.check(addr, 1, MEM_PROT_READ)
	if err != nil {
		return 0, err
	}
	return seg.Data[addr-seg.Start], nil
}

func (m *Memory) ReadSlice(addr uint64, buf []byte) error {
	seg, err := m.check(addr, len(buf), MEM_PROT_READ)
	if err != nil {
		return err
	}
	i := addr - seg.Start
	copy(buf, seg.Data[i:i+uint64(len(buf))])
	return nil
}

func (m *Memory) Write(addr uint64, val byte) error {
	seg, err := m.check(addr, 1, MEM_PROT_WRITE)
	if err != nil {
		return err
	}
	seg.Data[addr-seg.Start] = val
	return nil
}

func (m *Memory) WriteSlice(addr uint64, buf []byte) error {
	seg, err := m.check(addr, len(buf), MEM_PROT_WRITE)
	if err != nil {
		return err
	}
	copy(seg.Data[addr-seg.Start:], buf)
	return nil
}

// Fetch reads one 32-bit little-endian instruction word from executable memory.
func (m *Memory) Fetch(addr uint64) (uint32, error) {
	seg, err := m.check(addr, 4, MEM_PROT_EXEC)
	if err != nil {
		return 0, err
	}
	b := seg.Data[addr-seg.Start:]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// Unmap removes [start, start+length). Segments partially covered are trimmed or split.
func (m *Memory) Unmap(start, length uint64) {
	end := rangeEnd(start, length)
	for _, seg := range m.overlapping(start, length) {
		m.cut(seg, start, end)
	}
}

// Protect changes the protection of every mapped byte in [start, start+length).
func (m *Memory) Protect(start, length uint64, prot MemProt) error {
	overlapping := m.overlapping(start, length)
	if len(overlapping) == 0 {
		return &UnmappedError{Addr: start}
	}
	end := rangeEnd(start, length)
	for _, seg := range overlapping {
		lo, hi := max(start, seg.Start), min(end, seg.End())
		if lo == seg.Start && hi == seg.End() {
			seg.Prot = prot
			continue
		}
		m.tree.Delete(seg)
		base := seg.Start
		for _, part := range []*Segment{
			{Start: base, Prot: seg.Prot, Data: seg.Data[:lo-base : lo-base]},
			{Start: lo, Prot: prot, Data: seg.Data[lo-base : hi-base : hi-base]},
			{Start: hi, Prot: seg.Prot, Data: seg.Data[hi-base:]},
		} {
			if len(part.Data) != 0 {
				m.tree.ReplaceOrInsert(part)
			}
		}
	}
	return nil
}

func (m *Memory) ToPointer(addr uint64) Pointer {
	return Pointer{mem: m, addr: addr}
}

func (m *Memory) segment(addr uint64) *Segment {
	var found *Segment
	m.tree.DescendLessOrEqual(&Segment{Start: addr}, func(s *Segment) bool {
		found = s
		return false
	})
	if found == nil || !found.Contains(addr) {
		return nil
	}
	return found
}

func (m *Memory) check(addr uint64, length int, required MemProt) (*Segment, error) {
	seg := m.segment(addr)
	if seg == nil {
		return nil, &UnmappedError{Addr: addr}
	}
	if seg.Prot&required != required {
		return nil, &ProtectionError{Addr: addr, Available: seg.Prot, Required: required}
	}
	if addr+uint64(length) > seg.End() || addr+uint64(length) < addr {
		return nil, &OutOfBoundsError{Addr: addr, Len: length}
	}
	return seg, nil
}

// overlapping returns the segments intersecting [start, start+length), sorted by start.
func (m *Memory) overlapping(start, length uint64) []*Segment {
	if length == 0 {
		return nil
	}
	end := rangeEnd(start, length)
	var ret []*Segment
	from := start
	if seg := m.segment(start); seg != nil {
		ret = append(ret, seg)
		from = seg.End()
	}
	if from >= end {
		return ret
	}
	m.tree.AscendGreaterOrEqual(&Segment{Start: from}, func(s *Segment) bool {
		if s.Start >= end {
			return false
		}
		ret = append(ret, s)
		return true
	})
	return ret
}

func (m *Memory) cut(seg *Segment, start, end uint64) {
	segEnd := seg.End()
	switch {
	case start <= seg.Start && end >= segEnd:
		m.tree.Delete(seg)
	case start <= seg.Start:
		//    |    old    |
		// | del |  keep  |
		m.tree.Delete(seg)
		seg.Data = seg.Data[end-seg.Start:]
		seg.Start = end
		m.tree.ReplaceOrInsert(seg)
	case end >= segEnd:
		// |   old   |
		// | keep |  del  |
		seg.Data = seg.Data[: start-seg.Start : start-seg.Start]
	default:
		tail := &Segment{Start: end, Prot: seg.Prot, Data: seg.Data[end-seg.Start:]}
		seg.Data = seg.Data[: start-seg.Start : start-seg.Start]
		m.tree.ReplaceOrInsert(tail)
	}
}

func rangeEnd(start, length uint64) uint64 {
	if end := start + length; end >= start {
		return end
	}
	return ^uint64(0)
}
