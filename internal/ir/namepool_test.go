package ir

import "testing"

func TestAddSymbolStrongBeatsWeak(t *testing.T) {
	pool := NewNamePool()

	if _, err := pool.AddSymbol("foo", SymFunc, DescDefined, BindWeak, 0, 0x1000, VisDefault, nil, nil); err != nil {
		t.Fatalf("weak definition: %v", err)
	}
	if _, err := pool.AddSymbol("foo", SymFunc, DescDefined, BindGlobal, 0, 0x2000, VisDefault, nil, nil); err != nil {
		t.Fatalf("strong definition: %v", err)
	}

	sym, ok := pool.FindSymbol("foo")
	if !ok {
		t.Fatal("expected foo to resolve")
	}
	if sym.Value != 0x2000 {
		t.Fatalf("expected strong definition to win, got value 0x%x", sym.Value)
	}
}

func TestAddSymbolDuplicateStrongIsFatal(t *testing.T) {
	pool := NewNamePool()
	if _, err := pool.AddSymbol("foo", SymFunc, DescDefined, BindGlobal, 0, 0x1000, VisDefault, nil, nil); err != nil {
		t.Fatalf("first definition: %v", err)
	}
	_, err := pool.AddSymbol("foo", SymFunc, DescDefined, BindGlobal, 0, 0x2000, VisDefault, nil, nil)
	if err == nil {
		t.Fatal("expected duplicate strong definition to be fatal")
	}
}

func TestAddSymbolAllowMultipleDefinitionKeepsFirst(t *testing.T) {
	pool := NewNamePool()
	pool.AllowMultipleDefinition = true
	if _, err := pool.AddSymbol("foo", SymFunc, DescDefined, BindGlobal, 0, 0x1000, VisDefault, nil, nil); err != nil {
		t.Fatalf("first definition: %v", err)
	}
	if _, err := pool.AddSymbol("foo", SymFunc, DescDefined, BindGlobal, 0, 0x2000, VisDefault, nil, nil); err != nil {
		t.Fatalf("expected second strong definition to be tolerated, got %v", err)
	}
	sym, ok := pool.FindSymbol("foo")
	if !ok {
		t.Fatal("expected foo to resolve")
	}
	if sym.Value != 0x1000 {
		t.Fatalf("expected the first strong definition to win, got value 0x%x", sym.Value)
	}
}

func TestAddSymbolCommonLargerSizeWins(t *testing.T) {
	pool := NewNamePool()
	if _, err := pool.AddSymbol("buf", SymObject, DescCommon, BindGlobal, 8, 0, VisDefault, nil, nil); err != nil {
		t.Fatalf("first common: %v", err)
	}
	if _, err := pool.AddSymbol("buf", SymObject, DescCommon, BindGlobal, 64, 0, VisDefault, nil, nil); err != nil {
		t.Fatalf("second common: %v", err)
	}
	info, _ := pool.Find("buf")
	if info.Size != 64 {
		t.Fatalf("expected common size to be the max (64), got %d", info.Size)
	}
}

func TestAddSymbolStrongBeatsCommon(t *testing.T) {
	pool := NewNamePool()
	if _, err := pool.AddSymbol("buf", SymObject, DescCommon, BindGlobal, 8, 0, VisDefault, nil, nil); err != nil {
		t.Fatalf("common: %v", err)
	}
	if _, err := pool.AddSymbol("buf", SymObject, DescDefined, BindGlobal, 8, 0x4000, VisDefault, nil, nil); err != nil {
		t.Fatalf("strong: %v", err)
	}
	sym, _ := pool.FindSymbol("buf")
	if sym.Value != 0x4000 {
		t.Fatal("expected the strong definition to discard the common symbol")
	}
}

func TestWrapRedirectsReferences(t *testing.T) {
	pool := NewNamePool()
	pool.Wrap("foo")

	// b.o references foo -> should land on __wrap_foo.
	ref, err := pool.AddSymbol("foo", SymFunc, DescUndefined, BindGlobal, 0, 0, VisDefault, nil, nil)
	if err != nil {
		t.Fatalf("wrapped reference: %v", err)
	}
	if ref.Info.Name != "__wrap_foo" {
		t.Fatalf("expected reference to foo to resolve to __wrap_foo, got %s", ref.Info.Name)
	}

	// c.o references __real_foo -> should land on the original foo.
	real, err := pool.AddSymbol("__real_foo", SymFunc, DescUndefined, BindGlobal, 0, 0, VisDefault, nil, nil)
	if err != nil {
		t.Fatalf("__real_foo reference: %v", err)
	}
	if real.Info.Name != "foo" {
		t.Fatalf("expected __real_foo to resolve to foo, got %s", real.Info.Name)
	}
}

func TestVisibilityTakesMostRestrictive(t *testing.T) {
	pool := NewNamePool()
	if _, err := pool.AddSymbol("sym", SymFunc, DescDefined, BindGlobal, 0, 0x100, VisDefault, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.AddSymbol("sym", SymFunc, DescUndefined, BindGlobal, 0, 0, VisHidden, nil, nil); err != nil {
		t.Fatal(err)
	}
	info, _ := pool.Find("sym")
	if info.Visibility != VisHidden {
		t.Fatalf("expected the most restrictive visibility (hidden) to win, got %v", info.Visibility)
	}
}
