// Package elf defines the raw ELF32/ELF64 constants and struct layouts the
// core consumes, plus the abstract per-fragment emitter interface. The
// concrete byte-level encoders are out of scope per spec.md §1 ("Concrete
// ELF32/ELF64 byte-level encoders (the core invokes an abstract emitter
// per fragment)"); this package owns only the structural constants every
// other internal package needs to name section/segment/symbol kinds.
//
// Constant names and values are grounded on arc-language-core-codegen's
// format/elf/writer.go and the teacher's own elf.go/elf_complete.go.
package elf

// Identification.
const (
	EIMag0    = 0x7f
	EIMag1    = 'E'
	EIMag2    = 'L'
	EIMag3    = 'F'
	ELFClass32 = 1
	ELFClass64 = 2
	ELFData2LSB = 1
	ELFData2MSB = 2
	EVCurrent  = 1
)

// Object file types.
const (
	ETNone = 0
	ETRel  = 1
	ETExec = 2
	ETDyn  = 3
	ETCore = 4
)

// Machine types (subset spec.md's targets need).
const (
	EMX86_64  = 0x3e
	EMAArch64 = 0xb7
	EMARM     = 0x28
	EMHexagon = 0xa4
	EMRISCV   = 0xf3
)

// Section types.
const (
	SHTNull     = 0
	SHTProgbits = 1
	SHTSymtab   = 2
	SHTStrtab   = 3
	SHTRela     = 4
	SHTHash     = 5
	SHTDynamic  = 6
	SHTNote     = 7
	SHTNobits   = 8
	SHTRel      = 9
	SHTShlib    = 10
	SHTDynsym   = 11
	SHTGroup    = 17
	SHTGNUHash  = 0x6ffffff6
	SHTGNUVerdef  = 0x6ffffffd
	SHTGNUVerneed = 0x6ffffffe
	SHTGNUVersym  = 0x6fffffff
	SHTARMExidx = 0x70000001
)

// Section flags.
const (
	SHFWrite     = 0x1
	SHFAlloc     = 0x2
	SHFExecinstr = 0x4
	SHFMerge     = 0x10
	SHFStrings   = 0x20
	SHFInfoLink  = 0x40
	SHFLinkOrder = 0x80
	SHFTLS          = 0x400
	SHFCompressed   = 0x800
	SHFGNURetain    = 0x200000
)

// Compression types (ch_type), for SHF_COMPRESSED sections.
const (
	ELFCompressZlib = 1
)

// Symbol binding.
const (
	STBLocal  = 0
	STBGlobal = 1
	STBWeak   = 2
)

// Symbol types.
const (
	STTNotype  = 0
	STTObject  = 1
	STTFunc    = 2
	STTSection = 3
	STTFile    = 4
	STTCommon  = 5
	STTTLS     = 6
	STTGNUIFunc = 10
)

// Symbol visibility.
const (
	STVDefault   = 0
	STVInternal  = 1
	STVHidden    = 2
	STVProtected = 3
)

// Special section indices.
const (
	SHNUndef = 0
	SHNAbs   = 0xfff1
	SHNCommon = 0xfff2
)

// Program header types.
const (
	PTNull    = 0
	PTLoad    = 1
	PTDynamic = 2
	PTInterp  = 3
	PTNote    = 4
	PTShlib   = 5
	PTPhdr    = 6
	PTTLS     = 7
	PTGNUEHFrame = 0x6474e550
	PTGNURelro   = 0x6474e552
	PTGNUStack   = 0x6474e551
	PTGNUProperty = 0x6474e553
)

// Program header flags.
const (
	PFX = 0x1
	PFW = 0x2
	PFR = 0x4
)

// Dynamic tags (subset).
const (
	DTNull     = 0
	DTNeeded   = 1
	DTPltRelSz = 2
	DTPltGot   = 3
	DTHash     = 4
	DTStrtab   = 5
	DTSymtab   = 6
	DTRela     = 7
	DTRelaSz   = 8
	DTRelaEnt  = 9
	DTStrSz    = 10
	DTSymEnt   = 11
	DTInit     = 12
	DTFini     = 13
	DTSoname   = 14
	DTSymbolic = 16
	DTRel      = 17
	DTRelSz    = 18
	DTRelEnt   = 19
	DTPltRel   = 20
	DTDebug    = 21
	DTTextRel  = 22
	DTJmpRel   = 23
	DTBindNow  = 24
	DTGNUHash  = 0x6ffffef5
	DTFlags1   = 0x6ffffffb
)
