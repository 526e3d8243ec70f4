package launcher

import (
	"os"
	"strings"
	"testing"
)

func TestWriteScratchScriptIsUniqueAndExecutable(t *testing.T) {
	dir := t.TempDir()
	p1, err := writeScratchScript(dir, "echo hi")
	if err != nil {
		t.Fatalf("write scratch script: %v", err)
	}
	p2, err := writeScratchScript(dir, "echo hi")
	if err != nil {
		t.Fatalf("write scratch script: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("expected distinct scratch paths, got %s twice", p1)
	}

	info, err := os.Stat(p1)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode()&0o100 == 0 {
		t.Fatalf("expected scratch script to be executable, mode=%v", info.Mode())
	}

	data, err := os.ReadFile(p1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "echo hi") {
		t.Fatalf("expected body in script, got %s", data)
	}
	if !strings.HasPrefix(string(data), "#!/bin/sh\n") {
		t.Fatalf("expected shebang, got %s", data)
	}
}
