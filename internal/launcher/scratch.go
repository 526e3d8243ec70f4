package launcher

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// writeScratchScript writes body, followed by a line that deletes the
// script, to a uniquely named shell script under dir (os.TempDir() if
// empty) and returns its path. A body that ends by exec-ing another
// program, as SystemdRun's does, never reaches that line, so its script
// stays in dir.
// A uuid-derived name avoids any collision between concurrently
// launched jobs or between a job and a leftover script from a crashed
// prior run, without coupling the name to jobid the way a supervisor
// handle must be.
func writeScratchScript(dir, body string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("jqs-%s.sh", uuid.NewString()))
	content := "#!/bin/sh\n" + body + "\nrm -f -- \"$0\"\n"
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return "", fmt.Errorf("write scratch script: %w", err)
	}
	return path, nil
}
