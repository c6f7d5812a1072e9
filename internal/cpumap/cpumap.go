// Package cpumap handles physical CPU sets: the packed affinity rows
// exchanged with adapters and the range-compressed text form ("0-3,6")
// shown to users.
package cpumap

import (
	"fmt"
	"strconv"
	"strings"
)

// MapLen returns the number of bytes needed for one affinity row covering
// maxCPUs CPUs.
func MapLen(maxCPUs int) int {
	return (maxCPUs + 7) / 8
}

// Usable reports whether cpu is set in the affinity row of vcpu inside a
// packed table of rows mapLen bytes wide.
func Usable(maps []byte, mapLen, vcpu, cpu int) bool {
	i := vcpu*mapLen + cpu/8
	if cpu < 0 || cpu >= mapLen*8 || i < 0 || i >= len(maps) {
		return false
	}
	return maps[i]&(1<<(uint(cpu)%8)) != 0
}

// Bitmap is a fixed-size set of CPU indexes.
type Bitmap struct {
	size  int
	count int
	bits  []byte
}

// New returns an empty bitmap able to hold CPUs 0..size-1.
func New(size int) *Bitmap {
	if size < 0 {
		size = 0
	}
	return &Bitmap{size: size, bits: make([]byte, MapLen(size))}
}

// FromBytes builds a bitmap from a packed affinity row.
func FromBytes(row []byte, size int) *Bitmap {
	b := New(size)
	for cpu := 0; cpu < size && cpu/8 < len(row); cpu++ {
		if row[cpu/8]&(1<<(uint(cpu)%8)) != 0 {
			b.Set(cpu)
		}
	}
	return b
}

// Size returns the capacity of the bitmap.
func (b *Bitmap) Size() int {
	return b.size
}

// Set adds cpu to the set. Out-of-range indexes are ignored.
func (b *Bitmap) Set(cpu int) {
	if cpu < 0 || cpu >= b.size || b.IsSet(cpu) {
		return
	}
	b.bits[cpu/8] |= 1 << (uint(cpu) % 8)
	b.count++
}

// IsSet reports whether cpu is in the set.
func (b *Bitmap) IsSet(cpu int) bool {
	if cpu < 0 || cpu >= b.size {
		return false
	}
	return b.bits[cpu/8]&(1<<(uint(cpu)%8)) != 0
}

// Count returns the number of CPUs in the set.
func (b *Bitmap) Count() int {
	return b.count
}

// Bytes returns the packed row form of the set.
func (b *Bitmap) Bytes() []byte {
	out := make([]byte, len(b.bits))
	copy(out, b.bits)
	return out
}

// String formats the set as comma-separated ranges, e.g. "0-3,6,8-9".
func (b *Bitmap) String() string {
	var parts []string
	for cpu := 0; cpu < b.size; cpu++ {
		if !b.IsSet(cpu) {
			continue
		}
		start := cpu
		for cpu+1 < b.size && b.IsSet(cpu+1) {
			cpu++
		}
		if start == cpu {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, cpu))
		}
	}
	return strings.Join(parts, ",")
}

// Parse reads the range-compressed form. Entries prefixed with '^' are
// removed from the set built so far.
func Parse(s string, size int) (*Bitmap, error) {
	b := New(size)
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty cpu list")
	}

	var excluded []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		negate := strings.HasPrefix(part, "^")
		part = strings.TrimPrefix(part, "^")

		lo, hi, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		if hi >= size {
			return nil, fmt.Errorf("cpu %d out of range (max %d)", hi, size-1)
		}
		for cpu := lo; cpu <= hi; cpu++ {
			if negate {
				excluded = append(excluded, cpu)
			} else {
				b.Set(cpu)
			}
		}
	}

	if len(excluded) == 0 {
		return b, nil
	}
	out := New(size)
	skip := make(map[int]bool, len(excluded))
	for _, cpu := range excluded {
		skip[cpu] = true
	}
	for cpu := 0; cpu < size; cpu++ {
		if b.IsSet(cpu) && !skip[cpu] {
			out.Set(cpu)
		}
	}
	return out, nil
}

func parseRange(s string) (int, int, error) {
	lo, hi, isRange := strings.Cut(s, "-")
	start, err := strconv.Atoi(lo)
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("invalid cpu %q", s)
	}
	if !isRange {
		return start, start, nil
	}
	end, err := strconv.Atoi(hi)
	if err != nil || end < start {
		return 0, 0, fmt.Errorf("invalid cpu range %q", s)
	}
	return start, end, nil
}
