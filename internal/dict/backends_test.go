package dict_test

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"spool/internal/dict"
	"spool/internal/logging"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func openDict(t *testing.T, spec string, flags dict.Flags) dict.Dict {
	t.Helper()
	reg := dict.NewRegistry(logging.NewNop())
	t.Cleanup(func() { _ = reg.Close() })
	key, err := reg.Open(spec, os.O_RDONLY, flags)
	if err != nil {
		t.Fatalf("Open(%s): %v", spec, err)
	}
	d, ok := reg.Get(key)
	if !ok {
		t.Fatalf("Get(%s) missing", key)
	}
	return d
}

func expectLookup(t *testing.T, d dict.Dict, key, want string, wantOK bool) {
	t.Helper()
	got, ok, err := d.Lookup(key)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", key, err)
	}
	if ok != wantOK || got != want {
		t.Fatalf("Lookup(%q) = %q, %v; want %q, %v", key, got, ok, want, wantOK)
	}
}

func TestInline(t *testing.T) {
	d := openDict(t, "inline:{ a=1, b = two words , {c = x, y}, empty= }", 0)
	expectLookup(t, d, "a", "1", true)
	expectLookup(t, d, "b", "two words", true)
	expectLookup(t, d, "c", "x, y", true)
	expectLookup(t, d, "empty", "", true)
	expectLookup(t, d, "A", "", false)

	reg := dict.NewRegistry(logging.NewNop())
	for _, spec := range []string{"inline:a=1", "inline:{}", "inline:{a=1,a=2}", "inline:{novalue}"} {
		if _, err := reg.Open(spec, os.O_RDONLY, 0); !errors.Is(err, dict.ErrBadSpec) {
			t.Errorf("Open(%s) err = %v, want ErrBadSpec", spec, err)
		}
	}
}

func TestInlineFoldFixed(t *testing.T) {
	d := openDict(t, "inline:{User@Example.COM=ok}", dict.FlagFoldFixed)
	expectLookup(t, d, "user@example.com", "ok", true)
	expectLookup(t, d, "USER@EXAMPLE.COM", "ok", true)
}

func TestStaticAndFail(t *testing.T) {
	expectLookup(t, openDict(t, "static:relay:[mx.example]", 0), "whatever", "relay:[mx.example]", true)

	d := openDict(t, "fail:broken", 0)
	if _, _, err := d.Lookup("x"); !errors.Is(err, dict.ErrLookup) {
		t.Fatalf("Lookup err = %v, want ErrLookup", err)
	}
}

func TestTexthash(t *testing.T) {
	path := writeFile(t, "transport", `# comment
example.com   smtp:[mx.example.com]
Other.Org     relay:
  [gw.other.org]:2525

novalue
example.com   ignored:duplicate
`)
	d := openDict(t, "texthash:"+path, dict.FlagLock|dict.FlagFoldFixed)
	expectLookup(t, d, "example.com", "smtp:[mx.example.com]", true)
	expectLookup(t, d, "other.org", "relay: [gw.other.org]:2525", true)
	expectLookup(t, d, "novalue", "", false)
	expectLookup(t, d, "missing", "", false)
}

func TestTexthashMissingFile(t *testing.T) {
	reg := dict.NewRegistry(logging.NewNop())
	if _, err := reg.Open("texthash:"+filepath.Join(t.TempDir(), "none"), os.O_RDONLY, 0); err == nil {
		t.Fatal("expected error for missing source file")
	}
}

func TestRegexp(t *testing.T) {
	path := writeFile(t, "canonical", `/^(.*)@old\.example$/   ${1}@new.example
/^postmaster@/i          root
!/@/                     $missing
`)
	reg := dict.NewRegistry(logging.NewNop())
	if _, err := reg.Open("regexp:"+path, os.O_RDONLY, 0); !errors.Is(err, dict.ErrBadSpec) {
		t.Fatalf("negated rule with submatch err = %v, want ErrBadSpec", err)
	}

	path = writeFile(t, "canonical", `/^(.*)@old\.example$/   ${1}@new.example
/^postmaster@/i          root
!/@/                     local-only
`)
	d := openDict(t, "regexp:"+path, dict.FlagPattern)
	expectLookup(t, d, "joe@old.example", "joe@new.example", true)
	expectLookup(t, d, "PostMaster@any", "root", true)
	expectLookup(t, d, "bare", "local-only", true)
	expectLookup(t, d, "joe@elsewhere", "", false)
}

func TestRegexpRejectsBadLines(t *testing.T) {
	reg := dict.NewRegistry(logging.NewNop())
	for _, content := range []string{"abc def\n", "/unterminated def\n", "/a/z b\n", "/(/ b\n"} {
		path := writeFile(t, "bad", content)
		if _, err := reg.Open("regexp:"+path, os.O_RDONLY, 0); !errors.Is(err, dict.ErrBadSpec) {
			t.Errorf("content %q err = %v, want ErrBadSpec", content, err)
		}
	}
}

func TestSQLite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "maps.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE transport (domain TEXT, local TEXT, value TEXT)`,
		`INSERT INTO transport VALUES ('example.com', 'joe', 'smtp:[mx.example.com]')`,
		`INSERT INTO transport VALUES ('example.com', 'joe', 'lmtp:unix:/run/lmtp')`,
		`INSERT INTO transport VALUES ('other.org', 'ann', 'relay:')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	cf := writeFile(t, "transport.cf", fmt.Sprintf(
		"dbpath = %q\nquery = \"SELECT value FROM transport WHERE local = %%u AND domain = %%d ORDER BY rowid\"\n", dbPath))

	d := openDict(t, "sqlite:"+cf, dict.FlagFoldFixed)
	expectLookup(t, d, "Joe@Example.com", "smtp:[mx.example.com],lmtp:unix:/run/lmtp", true)
	expectLookup(t, d, "ann@other.org", "relay:", true)
	expectLookup(t, d, "nobody@other.org", "", false)
	expectLookup(t, d, "bare", "", false)
}

func TestSQLiteRejectsBadParameters(t *testing.T) {
	reg := dict.NewRegistry(logging.NewNop())
	for _, content := range []string{
		"query = \"SELECT 1 WHERE %s\"\n",
		"dbpath = \"/tmp/x.db\"\nquery = \"SELECT value FROM t\"\n",
		"dbpath = \"/tmp/x.db\"\nquery = \"SELECT %q\"\n",
	} {
		cf := writeFile(t, "bad.cf", content)
		if _, err := reg.Open("sqlite:"+cf, os.O_RDONLY, 0); !errors.Is(err, dict.ErrBadSpec) {
			t.Errorf("content %q err = %v, want ErrBadSpec", content, err)
		}
	}
}
