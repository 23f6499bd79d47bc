package sectionmap

import (
	"sort"

	"github.com/rb1005/eld/internal/ir"
)

// SortEXIDX orders .ARM.exidx fragments by the address of the code section
// each entry covers, per the ARM EHABI requirement that the exception
// index table be address-sorted so the unwinder can binary-search it.
// Supplemented from original_source's ARMEXIDXSection (the distilled spec
// did not carry this special case; the original linker does).
func SortEXIDX(frags []*ir.Fragment, coveredAddr func(*ir.Fragment) uint64) {
	sort.SliceStable(frags, func(i, j int) bool {
		return coveredAddr(frags[i]) < coveredAddr(frags[j])
	})
}

// IsEXIDXSection reports whether name is the ARM unwind index section or
// one of its input-section fragments (".ARM.exidx" or ".ARM.exidx.*").
func IsEXIDXSection(name string) bool {
	return name == ".ARM.exidx" || (len(name) > 11 && name[:11] == ".ARM.exidx.")
}

// IsEXTABSection reports whether name is the companion unwind table
// section, which is merged but never address-sorted (only the index is).
func IsEXTABSection(name string) bool {
	return name == ".ARM.extab" || (len(name) > 11 && name[:11] == ".ARM.extab.")
}
