package elf

// Header64 mirrors Elf64_Ehdr field-for-field, in the order the teacher's
// WriteELF (elf.go) writes them.
type Header64 struct {
	Type           uint16
	Machine        uint16
	Version        uint32
	Entry          uint64
	PhOff          uint64
	ShOff          uint64
	Flags          uint32
	EhSize         uint16
	PhEntSize      uint16
	PhNum          uint16
	ShEntSize      uint16
	ShNum          uint16
	ShStrNdx       uint16
	LittleEndian   bool
	Class64        bool
}

const (
	EhdrSize64 = 64
	PhdrSize64 = 56
	ShdrSize64 = 64
	SymSize64  = 24
	RelaSize64 = 24
)

// Phdr64 mirrors Elf64_Phdr.
type Phdr64 struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	VAddr  uint64
	PAddr  uint64
	FileSz uint64
	MemSz  uint64
	Align  uint64
}

// Shdr64 mirrors Elf64_Shdr.
type Shdr64 struct {
	NameOff   uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

// Sym64 mirrors Elf64_Sym.
type Sym64 struct {
	NameOff uint32
	Info    byte
	Other   byte
	Shndx   uint16
	Value   uint64
	Size    uint64
}

func SymInfo(binding, typ byte) byte { return (binding << 4) | (typ & 0xf) }

// Rela64 mirrors Elf64_Rela.
type Rela64 struct {
	Offset uint64
	Type   uint32
	Sym    uint32
	Addend int64
}
