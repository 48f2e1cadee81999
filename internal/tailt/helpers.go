package tailt

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Default truncation length for display strings.
const DefaultTruncateLength = 50

// Buffer sizes for scanning transcript files. Single JSONL lines can carry
// whole tool results, so the max line capacity is generous.
const (
	DefaultBufferSize = 64 * 1024
	MaxLineCapacity   = 10 * 1024 * 1024
)

// TruncateString truncates a string to max length, adding "..." if truncated.
// If s is shorter than or equal to max, it returns s unchanged.
// If max is 0 or negative, returns empty string.
func TruncateString(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// NewScannerWithMaxCapacity creates a bufio.Scanner sized for JSONL
// transcript files: 64KB initial buffer, 10MB max line capacity.
func NewScannerWithMaxCapacity(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, DefaultBufferSize)
	scanner.Buffer(buf, MaxLineCapacity)
	return scanner
}

// ValidatePathWithin reports an error when path does not resolve inside
// base. Ingest only ever reads files named by filesystem events, so this
// guards against symlinks escaping the watched roots.
func ValidatePathWithin(path, base string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("invalid path: empty path")
	}
	if strings.TrimSpace(base) == "" {
		return fmt.Errorf("invalid base path: empty path")
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return fmt.Errorf("invalid base path: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("invalid path: %s is not within %s", path, base)
	}
	return nil
}
