package maps_test

import (
	"encoding/base64"
	"errors"
	"testing"

	"spool/internal/dict"
	"spool/internal/logging"
	"spool/internal/maps"
	"spool/internal/testsupport"
)

func newSet(t *testing.T, reg *dict.Registry, specs string, flags dict.Flags) *maps.MapSet {
	t.Helper()
	set, err := maps.New(reg, "test_maps", specs, flags, logging.NewNop())
	if err != nil {
		t.Fatalf("maps.New(%q): %v", specs, err)
	}
	return set
}

func TestEmptyValueStopsSearch(t *testing.T) {
	reg := dict.NewRegistry(logging.NewNop())
	set := newSet(t, reg, "inline:{x=}, inline:{x=v}", 0)
	defer set.Free()

	value, ok := set.Find("x", 0)
	if ok || value != "" {
		t.Fatalf("Find = %q, %v; want not found", value, ok)
	}
	if !errors.Is(set.Err(), maps.ErrConfig) {
		t.Fatalf("Err = %v, want ErrConfig", set.Err())
	}
}

func TestFirstMatchWins(t *testing.T) {
	reg := dict.NewRegistry(logging.NewNop())
	// The failing table after the match proves it is never consulted.
	set := newSet(t, reg, "inline:{x=v}, fail:never", 0)
	defer set.Free()

	value, ok := set.Find("x", 0)
	if !ok || value != "v" {
		t.Fatalf("Find = %q, %v; want v", value, ok)
	}
	if set.Err() != nil {
		t.Fatalf("Err = %v, want nil", set.Err())
	}
}

func TestMissContinuesErrorStops(t *testing.T) {
	reg := dict.NewRegistry(logging.NewNop())
	set := newSet(t, reg, "inline:{a=1} inline:{b=2} fail:broken inline:{c=3}", 0)
	defer set.Free()

	if value, ok := set.Find("b", 0); !ok || value != "2" {
		t.Fatalf("Find(b) = %q, %v", value, ok)
	}
	if _, ok := set.Find("c", 0); ok {
		t.Fatal("Find(c) fell through a failing table")
	}
	if !errors.Is(set.Err(), dict.ErrLookup) {
		t.Fatalf("Err = %v, want ErrLookup", set.Err())
	}
	if value, ok := set.Find("a", 0); !ok || value != "1" || set.Err() != nil {
		t.Fatalf("Find(a) = %q, %v, err %v; error not reset", value, ok, set.Err())
	}
}

func TestEmptyKeyIsNotFound(t *testing.T) {
	reg := dict.NewRegistry(logging.NewNop())
	set := newSet(t, reg, "static:anything", 0)
	defer set.Free()
	if _, ok := set.Find("", 0); ok || set.Err() != nil {
		t.Fatalf("empty key found or errored: %v", set.Err())
	}
}

func TestFilterSkipsTables(t *testing.T) {
	dir := t.TempDir()
	re := testsupport.WriteMapFile(t, dir, "re", "/^x$/ from-pattern\n")
	reg := dict.NewRegistry(logging.NewNop())
	set := newSet(t, reg, "regexp:"+re+" inline:{x=from-fixed}", 0)
	defer set.Free()

	if value, _ := set.Find("x", 0); value != "from-pattern" {
		t.Fatalf("unfiltered Find = %q", value)
	}
	if value, _ := set.Find("x", dict.FlagFixed); value != "from-fixed" {
		t.Fatalf("fixed-only Find = %q", value)
	}
}

func TestSetsShareBackends(t *testing.T) {
	reg := dict.NewRegistry(logging.NewNop())
	first := newSet(t, reg, "inline:{k=v}", dict.FlagLock)
	second := newSet(t, reg, "inline:{k=v}", dict.FlagLock)

	key, err := dict.Key("inline:{k=v}", 0, dict.FlagLock)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if refs := reg.Refs(key); refs != 2 {
		t.Fatalf("refs = %d, want 2", refs)
	}
	if first = first.Free(); first != nil {
		t.Fatal("Free must return nil")
	}
	if value, ok := second.Find("k", 0); !ok || value != "v" {
		t.Fatalf("second set lost its table: %q, %v", value, ok)
	}
	second.Free()
	if refs := reg.Refs(key); refs != 0 {
		t.Fatalf("refs after free = %d", refs)
	}
}

func TestNewReleasesOnCapabilityFailure(t *testing.T) {
	dir := t.TempDir()
	re := testsupport.WriteMapFile(t, dir, "re", "/x/ y\n")
	reg := dict.NewRegistry(logging.NewNop())

	_, err := maps.New(reg, "bad", "inline:{a=1}, regexp:"+re, dict.FlagFoldFixed, logging.NewNop())
	if !errors.Is(err, dict.ErrCapability) {
		t.Fatalf("New err = %v, want ErrCapability", err)
	}
	key, _ := dict.Key("inline:{a=1}", 0, dict.FlagFoldFixed)
	if refs := reg.Refs(key); refs != 0 {
		t.Fatalf("inline table leaked with %d refs", refs)
	}
}

func TestFindFileBacked(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("550 go away\n"))
	reg := dict.NewRegistry(logging.NewNop())
	set := newSet(t, reg, "inline:{good="+encoded+", bad=***}", dict.FlagSrcRHSIsFile)
	defer set.Free()

	data, ok := set.FindFileBacked("good", 0)
	if !ok || string(data) != "550 go away\n" {
		t.Fatalf("FindFileBacked(good) = %q, %v", data, ok)
	}
	if _, ok := set.FindFileBacked("bad", 0); ok || !errors.Is(set.Err(), maps.ErrConfig) {
		t.Fatalf("FindFileBacked(bad) ok=%v err=%v", ok, set.Err())
	}
}

func TestFindFileBackedPanicsWithoutFlag(t *testing.T) {
	reg := dict.NewRegistry(logging.NewNop())
	set := newSet(t, reg, "static:x", 0)
	defer set.Free()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	set.FindFileBacked("k", 0)
}

func TestSpecsAndTitle(t *testing.T) {
	reg := dict.NewRegistry(logging.NewNop())
	set := newSet(t, reg, "static:a, static:b", 0)
	defer set.Free()
	if set.Title() != "test_maps" {
		t.Fatalf("Title = %q", set.Title())
	}
	if specs := set.Specs(); len(specs) != 2 || specs[1] != "static:b" {
		t.Fatalf("Specs = %q", specs)
	}
}

func TestCorrectValueFirstShadowsEmptyValue(t *testing.T) {
	reg := dict.NewRegistry(logging.NewNop())
	set := newSet(t, reg, "inline:{x=v}, inline:{x=}", 0)
	defer set.Free()

	if value, ok := set.Find("x", 0); !ok || value != "v" || set.Err() != nil {
		t.Fatalf("Find = %q, %v, err %v", value, ok, set.Err())
	}
}
