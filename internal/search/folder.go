package search

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/standardbeagle/logscope/internal/config"
)

// FolderMatch is one hit from the external multi-file scanner.
type FolderMatch struct {
	Path   string
	Line   uint64
	Column int
	Text   string
}

// ExternalScannerAvailable reports whether the configured scanner
// executable is on PATH. Its absence is not fatal per spec.md §4.3 —
// callers fall back to per-file in-process search.
func ExternalScannerAvailable(executable string) bool {
	if executable == "" {
		return false
	}
	_, err := exec.LookPath(executable)
	return err == nil
}

// FolderSearch spawns the external scanner over root, restricted by
// matcher's include/exclude globs, parsing "filename:line:column:text"
// output lines.
func FolderSearch(ctx context.Context, executable, pattern, root string, matcher *config.Matcher) ([]FolderMatch, error) {
	cmd := exec.CommandContext(ctx, executable, "--vimgrep", "--no-heading", pattern, root)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var matches []FolderMatch
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		fm, ok := parseScannerLine(scanner.Text())
		if !ok {
			continue
		}
		if matcher != nil && !matcher.Match(fm.Path) {
			continue
		}
		matches = append(matches, fm)
	}
	_ = cmd.Wait()
	return matches, nil
}

// parseScannerLine parses one "filename:line:column:text" record.
func parseScannerLine(line string) (FolderMatch, bool) {
	parts := strings.SplitN(line, ":", 4)
	if len(parts) < 4 {
		return FolderMatch{}, false
	}
	ln, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return FolderMatch{}, false
	}
	col, err := strconv.Atoi(parts[2])
	if err != nil {
		return FolderMatch{}, false
	}
	return FolderMatch{Path: parts[0], Line: ln - 1, Column: col - 1, Text: parts[3]}, true
}
