package ir

import "fmt"

// Fixed control registers.
const (
	AddrCtrl   = 0x00
	AddrStatus = 0x04
	WordBytes  = 4
)

// ElementAddress names one word of a tap table.
type ElementAddress struct {
	Name   string
	Offset int
}

// AddressEntry places one user register in the bus address space.
type AddressEntry struct {
	Register *BusRegister
	Offset   int
	// Range is the span in bytes.
	Range    int
	Elements []ElementAddress
}

// Contains reports whether addr falls inside the entry.
func (e AddressEntry) Contains(addr int) bool {
	return addr >= e.Offset && addr < e.Offset+e.Range
}

// AddressMap is the layout of the user registers, in declaration order.
type AddressMap struct {
	Base    int
	End     int
	Entries []AddressEntry
}

// AddressMap lays the registers out from base. Scalars take one word;
// a tap table takes one word per element of its extents padded to four
// dimensions.
func (s *SlaveIf) AddressMap(base int) AddressMap {
	m := AddressMap{Base: base}
	off := base
	for _, r := range s.registers {
		e := AddressEntry{Register: r, Offset: off, Range: r.Words() * WordBytes}
		if r.Memory {
			ext := Pad4(r.Extents)
			addr := off
			for i3 := 0; i3 < ext[3]; i3++ {
				for i2 := 0; i2 < ext[2]; i2++ {
					for i1 := 0; i1 < ext[1]; i1++ {
						for i0 := 0; i0 < ext[0]; i0++ {
							e.Elements = append(e.Elements, ElementAddress{
								Name:   fmt.Sprintf("%s_%d_%d_%d_%d", r.Name, i3, i2, i1, i0),
								Offset: addr,
							})
							addr += WordBytes
						}
					}
				}
			}
		}
		m.Entries = append(m.Entries, e)
		off += e.Range
	}
	m.End = off
	return m
}

// Find returns the entry holding addr.
func (m AddressMap) Find(addr int) (AddressEntry, bool) {
	for _, e := range m.Entries {
		if e.Contains(addr) {
			return e, true
		}
	}
	return AddressEntry{}, false
}

// DefaultRegisterBase is the first user register offset. Offsets below it
// are reserved for the fixed control and status words.
const DefaultRegisterBase = 0x40

// CheckRegisterBase rejects a base that overlaps the fixed registers or is
// not word aligned.
func CheckRegisterBase(base int) error {
	if base < AddrStatus+WordBytes {
		return fmt.Errorf("register base 0x%x overlaps the control and status words", base)
	}
	if base%WordBytes != 0 {
		return fmt.Errorf("register base 0x%x is not word aligned", base)
	}
	return nil
}
