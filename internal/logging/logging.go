// Package logging builds the service's slog fan-out (console or file, Graylog
// GELF, OTel bridge) and the zerolog adapter used by the command dispatcher.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const sessionStamp = "20060102_150405"

// LogFilePath builds a session log file path using OS-appropriate path separators.
func LogFilePath(logsDir, serviceName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", serviceName, sessionStart.Format(sessionStamp)),
	)
}

// PruneSessionLogs removes all but the newest keep session logs of serviceName
// in logsDir and returns the removed paths. A keep of zero or less keeps everything.
func PruneSessionLogs(logsDir, serviceName string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return nil, err
	}

	prefix := serviceName + "."
	var sessions []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".log")
		if _, err := time.Parse(sessionStamp, stamp); err != nil {
			continue
		}
		sessions = append(sessions, name)
	}
	if len(sessions) <= keep {
		return nil, nil
	}

	// The stamp sorts lexically in time order.
	sort.Strings(sessions)
	var removed []string
	for _, name := range sessions[:len(sessions)-keep] {
		path := filepath.Join(logsDir, name)
		if err := os.Remove(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}
	return removed, nil
}
