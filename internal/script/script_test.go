package script

import "testing"

func TestLexerScaledNumbers(t *testing.T) {
	l := NewLexer("4K 2M 0x10")
	tok := l.Next()
	if tok.Num != 4*1024 {
		t.Fatalf("4K = %d, want %d", tok.Num, 4*1024)
	}
	tok = l.Next()
	if tok.Num != 2*1024*1024 {
		t.Fatalf("2M = %d, want %d", tok.Num, 2*1024*1024)
	}
	tok = l.Next()
	if tok.Num != 0x10 {
		t.Fatalf("0x10 = %d, want %d", tok.Num, 0x10)
	}
}

func TestLexerDotIdentifier(t *testing.T) {
	l := NewLexer(". = ALIGN(8);")
	tok := l.Next()
	if tok.Type != TokDot {
		t.Fatalf("expected TokDot, got %v %q", tok.Type, tok.Text)
	}
}

func TestParseEntryCommand(t *testing.T) {
	p := NewParser(`ENTRY(_start)`, "t.ld")
	cmds, err := p.ParseScript()
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 || cmds[0].Kind != CmdEntry || len(cmds[0].Names) != 1 || cmds[0].Names[0] != "_start" {
		t.Fatalf("unexpected parse result: %+v", cmds)
	}
}

func TestParseMemoryBlock(t *testing.T) {
	src := `MEMORY { ROM (rx) : ORIGIN = 0x8000000, LENGTH = 256K RAM (rwx) : ORIGIN = 0x20000000, LENGTH = 64K }`
	p := NewParser(src, "t.ld")
	cmds, err := p.ParseScript()
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 || cmds[0].Kind != CmdMemory || len(cmds[0].Regions) != 2 {
		t.Fatalf("unexpected parse result: %+v", cmds)
	}
	rom := cmds[0].Regions[0]
	if rom.Attrs&AttrR == 0 || rom.Attrs&AttrX == 0 || rom.Attrs&AttrW != 0 {
		t.Fatalf("ROM attrs wrong: %v", rom.Attrs)
	}
}

func TestParseSectionsBlock(t *testing.T) {
	src := `SECTIONS {
		. = 0x1000;
		.text : { *(.text .text.*) }
		.data ALIGN(8) : { *(.data) }
		/DISCARD/ : { *(.comment) }
	}`
	p := NewParser(src, "t.ld")
	cmds, err := p.ParseScript()
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 || cmds[0].Kind != CmdSections {
		t.Fatalf("unexpected parse result: %+v", cmds)
	}
	body := cmds[0].Body
	if len(body) != 4 {
		t.Fatalf("expected 4 body commands, got %d: %+v", len(body), body)
	}
	if body[0].Kind != CmdAssignment || body[0].Symbol != "." {
		t.Fatalf("expected dot assignment first, got %+v", body[0])
	}
	text := body[1]
	if text.Kind != CmdOutputSectDesc || text.OutputName != ".text" {
		t.Fatalf("expected .text output section, got %+v", text)
	}
	if len(text.Rules) != 1 || text.Rules[0].FilePattern != "*" || len(text.Rules[0].SectionPattern) != 2 {
		t.Fatalf("unexpected .text rules: %+v", text.Rules)
	}
}

func TestParsePhdrsBlock(t *testing.T) {
	src := `PHDRS { text PT_LOAD FILEHDR PHDRS ; data PT_LOAD ; }`
	p := NewParser(src, "t.ld")
	cmds, err := p.ParseScript()
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 || cmds[0].Kind != CmdPhdrs || len(cmds[0].Phdrs) != 2 {
		t.Fatalf("unexpected parse result: %+v", cmds)
	}
	if !cmds[0].Phdrs[0].FileHdr || !cmds[0].Phdrs[0].PhdrsHdr {
		t.Fatalf("expected FILEHDR PHDRS on first program header: %+v", cmds[0].Phdrs[0])
	}
}

func TestExpressionEvalAndDumpRoundTrip(t *testing.T) {
	p := NewParser(`ALIGN(., 16) + SIZEOF(.text)`, "t.ld")
	e, err := p.parseExpr()
	if err != nil {
		t.Fatal(err)
	}
	e.SetContext("t.ld:1")
	ctx := NewContext()
	ctx.Dot = 17
	ctx.Sections = map[string]SectionInfo{}
	v, err := e.Eval(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != 32 {
		t.Fatalf("ALIGN(17,16)+0 = %d, want 32", v)
	}
	dump := e.Dump()
	p2 := NewParser(dump, "dump.ld")
	e2, err := p2.parseExpr()
	if err != nil {
		t.Fatalf("re-parsing dump %q: %v", dump, err)
	}
	e2.SetContext("dump.ld:1")
	v2, err := e2.Eval(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v2 != v {
		t.Fatalf("round-trip mismatch: %d != %d (dump=%q)", v2, v, dump)
	}
}

func TestLog2CeilBoundaries(t *testing.T) {
	cases := map[uint64]uint64{0: 0, 1: 0, 2: 1, 5: 3}
	for in, want := range cases {
		if got := log2Ceil(in); got != want {
			t.Errorf("log2Ceil(%d) = %d, want %d", in, got, want)
		}
	}
}
