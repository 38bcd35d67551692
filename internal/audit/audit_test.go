package audit

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFormatLine(t *testing.T) {
	ts := time.Date(2026, 10, 14, 8, 3, 11, 0, time.UTC)
	got := FormatLine(ts, "EXEC rc=1 out=a\nb")
	want := "[2026-10-14 08:03:11] EXEC rc=1 out=a b\n"
	if got != want {
		t.Fatalf("want %q got %q", want, got)
	}
}

func TestRecordAppends(t *testing.T) {
	dir := t.TempDir()
	l := NewFileLog(zerolog.Nop(), dir, "shutdown.log")
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	l.Record("REQ method=POST")
	l.Record("ALLOW ok:true issuing shutdown")

	b, err := os.ReadFile(filepath.Join(dir, "shutdown.log"))
	if err != nil {
		t.Fatal(err)
	}
	want := "[2026-01-02 03:04:05] REQ method=POST\n[2026-01-02 03:04:05] ALLOW ok:true issuing shutdown\n"
	if string(b) != want {
		t.Fatalf("unexpected file:\n%s", b)
	}
}

func TestMissingDirIsSwallowed(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")
	l := NewFileLog(zerolog.Nop(), dir, "shutdown.log")
	l.Record("DENY 403 bad_token token_len=0")
	if err := l.Append("x"); err != ErrNoLogDir {
		t.Fatalf("want ErrNoLogDir, got %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("log dir must not be created")
	}
}

func TestUnwritableFileIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	// a directory in place of the log file makes every open fail
	if err := os.Mkdir(filepath.Join(dir, "shutdown.log"), 0o755); err != nil {
		t.Fatal(err)
	}
	l := NewFileLog(zerolog.Nop(), dir, "shutdown.log")
	l.Record("REQ")
	if err := l.Append("REQ"); err == nil {
		t.Fatalf("expected append error")
	}
}

func TestConcurrentRecordsStayWhole(t *testing.T) {
	dir := t.TempDir()
	l := NewFileLog(zerolog.Nop(), dir, "shutdown.log")
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				l.Record(fmt.Sprintf("REQ g=%d i=%d pad=%s", g, i, strings.Repeat("p", 300)))
			}
		}(g)
	}
	wg.Wait()

	f, err := os.Open(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	n := 0
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "[") || !strings.Contains(line, "] REQ g=") || !strings.HasSuffix(line, strings.Repeat("p", 300)) {
			t.Fatalf("partial line: %q", line)
		}
		n++
	}
	if n != 16*25 {
		t.Fatalf("want %d lines, got %d", 16*25, n)
	}
}

func TestMemoryAndMulti(t *testing.T) {
	a, b := &Memory{}, &Memory{}
	m := Multi{a, b}
	m.Record("REQ")
	m.Record("ALLOW")
	for _, mem := range []*Memory{a, b} {
		got := mem.Events()
		if len(got) != 2 || got[0] != "REQ" || got[1] != "ALLOW" {
			t.Fatalf("unexpected events: %v", got)
		}
	}
}
