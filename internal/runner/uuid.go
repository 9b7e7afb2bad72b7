package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const machineUUIDFile = "machine-uuid"

// EnsureMachineUUID reads the persisted machine UUID from dataDir, or
// generates and persists a new one on first start (spec.md §4.5 startup
// ordering step (b); §9 Open Question resolution: the UUID is written once
// and kept while the file holds a valid UUID, so QEMU's SMBIOS identity
// survives Pod recreations that keep the same PVC; a malformed file is
// replaced with a new UUID).
func EnsureMachineUUID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, machineUUIDFile)

	existing, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(existing))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
		// fall through and regenerate a malformed file rather than fail startup
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read machine uuid: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir %s: %w", dataDir, err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("persist machine uuid: %w", err)
	}
	return id, nil
}
