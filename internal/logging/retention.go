package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names entries in Dir that expire. Pattern is a
// filepath.Match glob on the entry name; empty matches everything. With
// Dirs set only directories are pruned (recursively), otherwise only files.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
	Dirs    bool
}

// CleanupOldLogs removes entries of every target last modified more than
// retentionDays ago. Zero or less disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) {
	if retentionDays <= 0 {
		return
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	keep := excludedPaths(targets)
	for _, target := range targets {
		for _, path := range expired(target, cutoff) {
			if _, ok := keep[path]; ok {
				continue
			}
			remove := os.Remove
			if target.Dirs {
				remove = os.RemoveAll
			}
			if err := remove(path); err != nil {
				WarnWithContext(logger, "retention cleanup failed", "retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check permissions on "+target.Dir),
					String(FieldImpact, "expired entry stays on disk"),
				)
				continue
			}
			logger.Debug("expired entry removed",
				String("path", path),
				String(FieldEventType, "retention_pruned"),
			)
		}
	}
}

func excludedPaths(targets []RetentionTarget) map[string]struct{} {
	out := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if path = strings.TrimSpace(path); path == "" {
				continue
			}
			out[absPath(path)] = struct{}{}
		}
	}
	return out
}

func expired(target RetentionTarget, cutoff time.Time) []string {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	pattern := strings.TrimSpace(target.Pattern)
	var out []string
	for _, entry := range entries {
		if entry.IsDir() != target.Dirs {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, absPath(filepath.Join(dir, entry.Name())))
	}
	return out
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
