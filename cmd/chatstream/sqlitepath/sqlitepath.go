// Package sqlitepath locates the server's SQLite database for commands that
// read it from outside the server process.
package sqlitepath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ResolveSQLitePath returns override when set, then CHATSTREAM_SQLITE, then
// the first existing well-known database file.
func ResolveSQLitePath(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("CHATSTREAM_SQLITE")); envPath != "" {
		return envPath, nil
	}

	for _, candidate := range sqliteCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", errors.New("could not find chatstream SQLite database; pass --sqlite")
}

func sqliteCandidates() []string {
	candidates := []string{
		"chatstream.db",
		filepath.Join(".chatstream", "chatstream.db"),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".chatstream", "chatstream.db"))
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append(candidates, filepath.Join(xdgHome, "chatstream", "chatstream.db"))
	}

	return candidates
}
