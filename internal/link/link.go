package link

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rb1005/eld/internal/archive"
	"github.com/rb1005/eld/internal/diag"
	"github.com/rb1005/eld/internal/input"
	"github.com/rb1005/eld/internal/ir"
	"github.com/rb1005/eld/internal/layout"
	"github.com/rb1005/eld/internal/plugin"
	"github.com/rb1005/eld/internal/script"
)

// Linker drives the six-phase pipeline for a single link over one Module.
// One Linker is used per invocation of Run; it is not reused.
type Linker struct {
	Opts *Options
	Mod  *ir.Module
	Pool *Pool

	scriptCmds []*script.Command
	phdrSpecs  []*script.Phdr
	sections   *script.Command // the SECTIONS command, if any
	memories   []*script.Region // every MEMORY region, in script order

	// explicitUndefined accumulates -u/--undefined/EXTERN(...) names
	// (spec.md §4.4 step 4: "Symbols named in -u / --undefined, in
	// EXTERN"), consulted by runGC to seed the GC entry set.
	explicitUndefined []string

	openFiles []*input.MappedFile

	// engine and result hold Layout's working state and final product,
	// consumed by Emit.
	engine *layout.Engine
	result *layoutResult

	// Plugins holds every --plugin=NAME/PLUGIN(...) name plus whatever
	// reloc/section-match hooks a plugin.LinkerWrapper caller installed.
	Plugins *plugin.Registry
}

// New builds a Linker ready to run Prepare through Emit for opts.
func New(opts *Options, sink *diag.Sink) *Linker {
	mod := ir.NewModule(opts.Arch, opts.OutputKind(), sink)
	mod.GCSections = opts.GCSections
	mod.Relax = opts.Relax
	mod.DynamicLink = !opts.Static
	mod.Pool.AllowMultipleDefinition = opts.AllowMultipleDefinition
	return &Linker{Opts: opts, Mod: mod, Pool: NewPool(opts.Workers), Plugins: plugin.NewRegistry()}
}

// Run executes every phase in order and returns the final image bytes.
func (l *Linker) Run() ([]byte, error) {
	if err := l.Prepare(); err != nil {
		return nil, err
	}
	defer l.closeInputs()
	if err := l.Normalize(); err != nil {
		return nil, err
	}
	if err := l.Resolve(); err != nil {
		return nil, err
	}
	l.LoadNonUniversalPlugins()
	if err := l.Layout(); err != nil {
		return nil, err
	}
	return l.Emit()
}

func (l *Linker) closeInputs() {
	for _, f := range l.openFiles {
		f.Close()
	}
}

// Prepare resolves the command-line input list (spec.md §2 Prepare):
// positional files and -lNAME arguments are located against SearchDirs,
// and the optional linker script (if given via -T) is parsed up front so
// its MEMORY/PHDRS/SECTIONS commands are available to Layout.
func (l *Linker) Prepare() error {
	if err := l.Mod.State.Advance(ir.Initializing); err != nil {
		return err
	}

	if l.Opts.LinkerScript != "" {
		f, err := input.Open(l.Opts.LinkerScript)
		if err != nil {
			return fmt.Errorf("link: reading script %s: %w", l.Opts.LinkerScript, err)
		}
		l.openFiles = append(l.openFiles, f)
		p := script.NewParser(string(f.Bytes()), l.Opts.LinkerScript)
		cmds, err := p.ParseScript()
		if err != nil {
			return fmt.Errorf("link: parsing script %s: %w", l.Opts.LinkerScript, err)
		}
		l.scriptCmds = cmds
		for _, c := range cmds {
			switch c.Kind {
			case script.CmdSections:
				l.sections = c
			case script.CmdPhdrs:
				l.phdrSpecs = append(l.phdrSpecs, c.Phdrs...)
			case script.CmdEntry:
				if len(c.Names) > 0 {
					l.Mod.EntrySymbolName = c.Names[0]
				}
			case script.CmdPlugin:
				if c.PluginName != "" {
					l.Opts.Plugins = append(l.Opts.Plugins, c.PluginName)
				} else {
					l.Opts.Plugins = append(l.Opts.Plugins, c.PluginType)
				}
			case script.CmdMemory:
				l.memories = append(l.memories, c.Regions...)
			case script.CmdExtern:
				l.explicitUndefined = append(l.explicitUndefined, c.Names...)
			}
		}
	}
	if l.Mod.EntrySymbolName == "" {
		l.Mod.EntrySymbolName = "_start"
	}

	l.explicitUndefined = append(l.explicitUndefined, l.Opts.Undefined...)

	for _, name := range l.Opts.Wrap {
		l.Mod.Pool.Wrap(name)
	}

	for _, in := range l.Opts.Inputs {
		path, err := l.resolveInputPath(in)
		if err != nil {
			return err
		}
		l.Mod.AddInputFile(&ir.InputFile{Path: path, Kind: guessKind(path)})
	}
	return nil
}

// resolveInputPath turns a "-lfoo"-shaped token into a located path
// against SearchDirs (preferring a shared object unless -static), leaving
// anything that already looks like a path untouched. A leading "=" is
// replaced by --sysroot (spec.md §6 Environment): "=/usr/lib/libc.a"
// resolves against Sysroot instead of the filesystem root.
func (l *Linker) resolveInputPath(in string) (string, error) {
	if strings.HasPrefix(in, "=") {
		return filepath.Join(l.Opts.Sysroot, strings.TrimPrefix(in, "=")), nil
	}
	if !strings.HasPrefix(in, "-l") {
		return in, nil
	}
	name := strings.TrimPrefix(in, "-l")
	candidates := []string{"lib" + name + ".a"}
	if !l.Opts.Static {
		candidates = append([]string{"lib" + name + ".so"}, candidates...)
	}
	for _, dir := range l.Opts.SearchDirs {
		for _, cand := range candidates {
			p := filepath.Join(dir, cand)
			if f, err := input.Open(p); err == nil {
				f.Close()
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("link: cannot find -l%s in search path", name)
}

func guessKind(path string) ir.InputKind {
	switch {
	case strings.HasSuffix(path, ".a"):
		return ir.InputArchive
	case strings.HasSuffix(path, ".so") || strings.Contains(path, ".so."):
		return ir.InputELFSharedObject
	case strings.HasSuffix(path, ".ld") || strings.HasSuffix(path, ".lds") || strings.HasSuffix(path, ".script"):
		return ir.InputLinkerScript
	default:
		return ir.InputELFRelocatable
	}
}

// Normalize mmaps and parses every input file (spec.md §2 Normalize),
// parallelized across files via the bounded worker pool. Relocatable
// objects are parsed directly into the IR; archives are scanned (not yet
// extracted -- extraction is lazy, driven by Resolve's fixpoint) and
// shared objects contribute only their global symbols (see
// normalizeSharedObject).
func (l *Linker) Normalize() error {
	for _, f := range l.Mod.InputFiles {
		f := f
		switch f.Kind {
		case ir.InputELFRelocatable:
			l.Pool.Go(func() error { return l.normalizeObject(f) })
		case ir.InputArchive:
			l.Pool.Go(func() error { return l.normalizeArchive(f) })
		case ir.InputELFSharedObject:
			l.Pool.Go(func() error { return l.normalizeSharedObject(f) })
		}
	}
	if errs := l.Pool.Wait(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (l *Linker) normalizeObject(f *ir.InputFile) error {
	mf, err := input.Open(f.Path)
	if err != nil {
		return err
	}
	l.openFiles = append(l.openFiles, mf)
	parsed, err := input.ParseObject(f.Path, mf.Bytes(), l.Mod.Pool)
	if err != nil {
		return err
	}
	f.Sections = parsed.Sections
	f.LocalSymbols = parsed.LocalSymbols
	f.Contents = parsed.Contents
	return nil
}

func (l *Linker) normalizeArchive(f *ir.InputFile) error {
	mf, err := input.Open(f.Path)
	if err != nil {
		return err
	}
	l.openFiles = append(l.openFiles, mf)
	f.Contents = mf.Bytes()
	return archive.Parse(f, f.Contents)
}

// normalizeSharedObject records just enough of a shared object for
// resolution: its own sections are never placed into the output, only its
// global symbols contribute occurrences a link can bind against. The
// symbols are read from .symtab by the same ParseObject used for
// relocatable objects; the dynamic symbol table is not read, and SONAME is
// set to the file's path rather than read from DT_SONAME.
func (l *Linker) normalizeSharedObject(f *ir.InputFile) error {
	mf, err := input.Open(f.Path)
	if err != nil {
		return err
	}
	l.openFiles = append(l.openFiles, mf)
	f.Contents = mf.Bytes()
	parsed, err := input.ParseObject(f.Path, f.Contents, l.Mod.Pool)
	if err != nil {
		return err
	}
	f.SONAME = f.Path
	// A shared object's own sections never enter SectionMap; only the
	// global symbols ParseObject already inserted into the pool matter.
	// Their SourceFile is parsed (not f), so parsed is tagged as a shared
	// object to let later passes tell a binding came from a dynamic
	// dependency via Kind == InputELFSharedObject.
	parsed.Kind = ir.InputELFSharedObject
	return nil
}

// Resolve finishes archive extraction to a fixpoint and applies the
// --unresolved-symbols policy (spec.md §2 Resolve / §4.1 rule 7).
func (l *Linker) Resolve() error {
	if err := l.Mod.State.Advance(ir.BeforeLayout); err != nil {
		return err
	}

	var archives []*ir.InputFile
	for _, f := range l.Mod.InputFiles {
		if f.Kind == ir.InputArchive {
			archives = append(archives, f)
		}
	}
	if len(archives) > 0 {
		provides := l.scanArchiveProvides(archives)
		extracted, err := archive.ExtractToFixpoint(l.Mod.Pool, archives, provides, l.undefinedNames, func(pool *ir.NamePool, member *ir.InputFile) error {
			parsed, err := input.ParseObject(member.Path, member.Contents, pool)
			if err != nil {
				return err
			}
			member.Sections = parsed.Sections
			member.LocalSymbols = parsed.LocalSymbols
			return nil
		})
		if err != nil {
			return err
		}
		for _, m := range extracted {
			l.Mod.AddInputFile(m)
		}
	}

	return l.checkUnresolved()
}

// scanArchiveProvides pre-scans every not-yet-extracted member of each
// archive's own symbol table into a throwaway NamePool, recording which
// member first defines each name -- the in-memory equivalent of an ar
// archive's symdef index, since this package's hand-rolled ar reader
// (internal/archive) does not itself understand ELF symbol tables.
func (l *Linker) scanArchiveProvides(archives []*ir.InputFile) map[string]*archive.MemberLocation {
	provides := make(map[string]*archive.MemberLocation)
	for _, a := range archives {
		for _, m := range a.ArchiveMembers {
			scratch := ir.NewNamePool()
			probe := &ir.InputFile{Path: a.Path + "(" + m.Name + ")", Kind: ir.InputELFRelocatable}
			data := archive.Member(a, m)
			parsed, err := input.ParseObject(probe.Path, data, scratch)
			if err != nil {
				continue
			}
			_ = parsed
			for _, name := range scratch.Names() {
				info, ok := scratch.Find(name)
				if !ok || (info.Desc != ir.DescDefined && info.Desc != ir.DescCommon) {
					continue
				}
				if _, taken := provides[name]; !taken {
					provides[name] = archive.NewMemberLocation(a, m)
				}
			}
		}
	}
	return provides
}

func (l *Linker) undefinedNames() []string {
	var out []string
	for _, name := range l.Mod.Pool.Names() {
		if info, ok := l.Mod.Pool.Find(name); ok && info.Desc == ir.DescUndefined {
			out = append(out, name)
		}
	}
	return out
}

func (l *Linker) checkUnresolved() error {
	if l.Opts.Unresolved == UnresolvedIgnoreAll {
		return nil
	}
	for _, name := range l.Mod.Pool.Names() {
		info, _ := l.Mod.Pool.Find(name)
		if info.Desc != ir.DescUndefined || info.Binding == ir.BindWeak {
			continue
		}
		if l.Mod.DynamicLink && l.Opts.Unresolved == UnresolvedIgnoreInSharedLibs {
			continue
		}
		e := diag.New(diag.Fatal, diag.ErrUnresolvedSymbol, name)
		l.Mod.Sink.Report(e)
	}
	if l.Mod.Sink.Failed() {
		return fmt.Errorf("link: unresolved symbols")
	}
	return nil
}

// LoadNonUniversalPlugins runs the plugin ABI hook surface (spec.md §9);
// no executable plugin loading is implemented, so this only announces
// each configured plugin to the trace sink. See internal/plugin.
func (l *Linker) LoadNonUniversalPlugins() {
	for _, p := range l.Opts.Plugins {
		l.Plugins.Register(p)
		l.Mod.Sink.Verbosef("plugin registered (ABI hooks only, no code loaded): %s", p)
	}
}
