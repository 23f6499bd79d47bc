package reloc

import "github.com/rb1005/eld/internal/ir"

// Scanner walks every relocation once, deciding what linker-synthesized
// artifact (if any) it requires and reserving it idempotently via
// ResolveInfo.Reserved, per spec.md §4.5.
type Scanner struct {
	Relocator Relocator
	Module    *ir.Module
	Context   ScanContext

	GOT  *Synth
	PLT  *Synth
	Copy *Synth
}

// Synth accumulates one kind of synthesized artifact's reservations, each
// keyed by the ResolveInfo it serves so a second relocation to the same
// symbol reuses the existing slot rather than allocating a new one.
type Synth struct {
	order   []*ir.ResolveInfo
	indexOf map[*ir.ResolveInfo]int
}

func newSynth() *Synth { return &Synth{indexOf: map[*ir.ResolveInfo]int{}} }

// Reserve returns the stable index for info, allocating a new one if this
// is the first request.
func (s *Synth) Reserve(info *ir.ResolveInfo) int {
	if i, ok := s.indexOf[info]; ok {
		return i
	}
	i := len(s.order)
	s.order = append(s.order, info)
	s.indexOf[info] = i
	return i
}

func (s *Synth) Count() int { return len(s.order) }

func NewScanner(relocator Relocator, m *ir.Module, sc ScanContext) *Scanner {
	return &Scanner{Relocator: relocator, Module: m, Context: sc, GOT: newSynth(), PLT: newSynth(), Copy: newSynth()}
}

// Scan classifies r and reserves whatever artifact its class requires.
// Scanning the same relocation twice is a no-op thanks to the
// Reserved bitmask check, matching spec.md's "to make the scan
// idempotent".
func (s *Scanner) Scan(r *ir.Relocation) {
	shape := s.Relocator.Shape(r)
	r.Class = ClassifyGeneric(shape, r.Symbol, s.Context)

	if r.Symbol == nil {
		return
	}
	switch r.Class {
	case ir.RelocAbsoluteLocalPIC, ir.RelocAbsolutePreemptibleGlobal:
		if !r.Symbol.Reserved.Has(ir.ReserveRel) {
			r.Symbol.Reserved |= ir.ReserveRel
		}
	case ir.RelocAbsoluteCopy:
		if !r.Symbol.Reserved.Has(ir.ReserveCopy) {
			r.Symbol.Reserved |= ir.ReserveCopy
			s.Copy.Reserve(r.Symbol)
		}
	case ir.RelocGOTRelative:
		if !r.Symbol.Reserved.Has(ir.ReserveGOT) {
			r.Symbol.Reserved |= ir.ReserveGOT
			s.GOT.Reserve(r.Symbol)
			if r.Symbol.Preemptible(s.Context.DynamicLink, s.Context.Symbolic) {
				r.Symbol.Reserved |= ir.ReserveRel
			}
		}
	case ir.RelocPLTCall:
		if !r.Symbol.Reserved.Has(ir.ReservePLT) {
			r.Symbol.Reserved |= ir.ReservePLT
			s.PLT.Reserve(r.Symbol)
			if !r.Symbol.Reserved.Has(ir.ReserveGOT) {
				r.Symbol.Reserved |= ir.ReserveGOT
				s.GOT.Reserve(r.Symbol)
			}
		}
	case ir.RelocTLSGD:
		if !r.Symbol.Reserved.Has(ir.ReserveTLSModuleID) {
			r.Symbol.Reserved |= ir.ReserveTLSModuleID | ir.ReserveTLSOffset
			s.GOT.Reserve(r.Symbol)
		}
	case ir.RelocTLSLD:
		// All LD relocations in the link share a single module-id slot;
		// the caller reserves that once, globally, not per-symbol.
	case ir.RelocTLSIE:
		if !r.Symbol.Reserved.Has(ir.ReserveTLSOffset) {
			r.Symbol.Reserved |= ir.ReserveTLSOffset
			s.GOT.Reserve(r.Symbol)
		}
	}
}

// ScanAll runs Scan over every relocation in relocs.
func (s *Scanner) ScanAll(relocs []*ir.Relocation) {
	for _, r := range relocs {
		s.Scan(r)
	}
}
