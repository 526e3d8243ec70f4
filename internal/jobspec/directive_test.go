package jobspec

import (
	"strings"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	script := "#!/bin/bash\necho hi\n"
	req, err := Parse(strings.NewReader(script), "/tmp/myjob.sh", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Name != "myjob" {
		t.Fatalf("expected default name from basename, got %q", req.Name)
	}
	if req.Cores != 1 || req.MemMB != 512 {
		t.Fatalf("expected defaults cores=1 mem_mb=512, got cores=%d mem_mb=%d", req.Cores, req.MemMB)
	}
	if req.Stdout != "stdout.log" || req.Stderr != "stderr.log" {
		t.Fatalf("expected default stdout/stderr, got %q %q", req.Stdout, req.Stderr)
	}
}

func TestParseDirectives(t *testing.T) {
	script := "#!/bin/bash\n#JS cores=4 mem_mb=8192 name=\"my job\" time_limit=01:02:03\necho hi\n"
	req, err := Parse(strings.NewReader(script), "/tmp/s.sh", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Cores != 4 || req.MemMB != 8192 {
		t.Fatalf("got cores=%d mem_mb=%d", req.Cores, req.MemMB)
	}
	if req.Name != "my job" {
		t.Fatalf("expected quoted name, got %q", req.Name)
	}
	if req.TimeLimitSec == nil || *req.TimeLimitSec != 3723 {
		t.Fatalf("expected 3723s time limit, got %v", req.TimeLimitSec)
	}
}

func TestParseStopsAtFirstNonHeaderLine(t *testing.T) {
	script := "#!/bin/bash\necho hi\n#JS cores=4\n"
	req, err := Parse(strings.NewReader(script), "/tmp/s.sh", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Cores != 1 {
		t.Fatalf("directive after header block should be ignored, got cores=%d", req.Cores)
	}
}

func TestParseUnknownKeyWarns(t *testing.T) {
	var warned string
	script := "#JS bogus=1 cores=2\n"
	req, err := Parse(strings.NewReader(script), "/tmp/s.sh", func(msg string) { warned = msg })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Cores != 2 {
		t.Fatalf("expected cores=2, got %d", req.Cores)
	}
	if warned == "" {
		t.Fatalf("expected a warning about the unknown key")
	}
}

func TestParseBadDirectiveRejectsNonPositiveCores(t *testing.T) {
	_, err := Parse(strings.NewReader("#JS cores=0\n"), "/tmp/s.sh", nil)
	var bad *BadDirectiveError
	if err == nil {
		t.Fatalf("expected BadDirectiveError")
	}
	if !isBadDirective(err, &bad) {
		t.Fatalf("expected *BadDirectiveError, got %T: %v", err, err)
	}
}

func TestParseBadTimeLimit(t *testing.T) {
	cases := []string{"1:2", "1:60:00", "1:00:60", "a:00:00"}
	for _, c := range cases {
		_, err := Parse(strings.NewReader("#JS time_limit="+c+"\n"), "/tmp/s.sh", nil)
		if err == nil {
			t.Fatalf("expected error for time_limit=%q", c)
		}
	}
}

func TestParseQuotedEscapes(t *testing.T) {
	req, err := Parse(strings.NewReader(`#JS name="a \"quoted\" \\name"`+"\n"), "/tmp/s.sh", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Name != `a "quoted" \name` {
		t.Fatalf("got %q", req.Name)
	}
}

func TestParseUnterminatedQuote(t *testing.T) {
	_, err := Parse(strings.NewReader(`#JS name="oops`+"\n"), "/tmp/s.sh", nil)
	if err == nil {
		t.Fatalf("expected error for unterminated quote")
	}
}

func isBadDirective(err error, target **BadDirectiveError) bool {
	if b, ok := err.(*BadDirectiveError); ok {
		*target = b
		return true
	}
	return false
}
