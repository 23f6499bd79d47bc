package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ELD_SYSROOT", "")
	t.Setenv("ELD_LIBRARY_PATH", "")
	t.Setenv("ELD_VERBOSE", "")

	d := Load()
	if d.Sysroot != "" || d.DefaultSearchDirs != nil || d.Verbose {
		t.Fatalf("expected zero-value defaults, got %+v", d)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ELD_SYSROOT", "/opt/sysroot")
	t.Setenv("ELD_LIBRARY_PATH", "/opt/lib:/opt/lib64")
	t.Setenv("ELD_VERBOSE", "true")

	d := Load()
	if d.Sysroot != "/opt/sysroot" {
		t.Fatalf("expected sysroot /opt/sysroot, got %q", d.Sysroot)
	}
	if len(d.DefaultSearchDirs) != 2 || d.DefaultSearchDirs[0] != "/opt/lib" || d.DefaultSearchDirs[1] != "/opt/lib64" {
		t.Fatalf("unexpected search dirs: %v", d.DefaultSearchDirs)
	}
	if !d.Verbose {
		t.Fatal("expected Verbose to be true")
	}
}
