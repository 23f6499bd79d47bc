package script

// AssignLevel is the four levels at which an ASSIGNMENT can occur
// (spec.md §4.2): the level determines when the symbol is committed.
type AssignLevel int

const (
	LevelOutsideSections AssignLevel = iota
	LevelOutputSection               // prolog
	LevelInputSection                // between rules
	LevelSectionsEnd                 // epilog
)

// CommandKind tags the closed set of ScriptCommand variants spec.md §4.2
// lists.
type CommandKind int

const (
	CmdEntry CommandKind = iota
	CmdExtern
	CmdGroup
	CmdInput
	CmdInclude
	CmdSearchDir
	CmdOutput
	CmdOutputArch
	CmdOutputFormat
	CmdPhdrs
	CmdMemory
	CmdRegionAlias
	CmdNoCrossRefs
	CmdSections
	CmdOutputSectDesc
	CmdAssignment
	CmdAssert
	CmdPlugin
	CmdEnterScope
	CmdExitScope
)

// Command is one ScriptCommand node. Like Expression, it is a tagged
// variant dispatched by Kind (spec.md §9's "Polymorphism -> tagged
// variants" design note).
type Command struct {
	Kind CommandKind
	Line int

	// CmdEntry / CmdExtern / CmdOutput / CmdOutputArch / CmdOutputFormat /
	// CmdSearchDir / CmdRegionAlias / CmdNoCrossRefs
	Names []string

	// CmdInput / CmdGroup: member list (archives/objects named directly,
	// without -l/-L resolution, which happens in internal/link).
	Inputs []string
	AsNeeded bool

	// CmdInclude
	Path     string
	Optional bool

	// CmdPhdrs
	Phdrs []*Phdr

	// CmdMemory
	Regions []*Region

	// CmdSections / CmdOutputSectDesc: nested commands.
	Body []*Command

	// CmdOutputSectDesc
	OutputName string
	AtExpr     *Expression
	AlignExpr  *Expression
	SubAlign   *Expression
	Region     string
	LMARegion  string
	PhdrNames  []string
	FillExpr   *Expression
	Rules      []*InputSectDesc

	// CmdAssignment
	Level      AssignLevel
	Symbol     string
	Op         string // "=", "+=", etc.
	Value      *Expression
	Provide    bool
	ProvideHidden bool

	// CmdAssert
	AssertExpr *Expression
	AssertMsg  string

	// CmdPlugin
	PluginType    string
	PluginName    string
	PluginOptions string
}

// InputSectDesc is one `[KEEP(]file_pattern(section_patterns)[)]` entry
// inside a SECTIONS output-section body (spec.md §4.3).
type InputSectDesc struct {
	FilePattern    string
	SectionPattern []string
	ExcludeFiles   []string
	Keep           bool
	SortByName     bool
	SortByAlignment bool
	SortByInitPriority bool

	// Assignment, when non-nil, means this InputSectDesc slot is actually
	// an inline assignment between rules (LevelInputSection), not a
	// pattern match.
	Assignment *Command
}
