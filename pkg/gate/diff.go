package gate

import (
	"fmt"
	"strconv"
	"strings"
)

// DiffGate requires the answer to look like a patch: a unified diff that
// parses, or at least addition/removal lines under a diff header.
type DiffGate struct{}

func (DiffGate) Name() string { return "diff" }

func (DiffGate) Evaluate(content string) *GateResult {
	body, _ := unfence(content)
	if body == "" {
		return NewFailingResult(Violation{Rule: "diff_format", Severity: "error", Message: "Not a valid diff format: empty response"})
	}

	if patches, err := ParseUnifiedDiff(body); err == nil {
		hunks, changes := 0, 0
		for _, p := range patches {
			hunks += len(p.Hunks)
			for _, h := range p.Hunks {
				changes += h.Changes()
			}
		}
		if hunks > 0 {
			if changes == 0 {
				return NewFailingResult(Violation{Rule: "diff_format", Severity: "error", Message: "Not a valid diff format: no addition or removal lines"})
			}
			return NewPassingResult(fmt.Sprintf("Diff format valid: %d file(s), %d hunk(s)", len(patches), hunks))
		}
	}

	header, changes := scanDiffMarkers(body)
	switch {
	case header && changes > 0:
		return NewPassingResult(fmt.Sprintf("Diff format valid: %d changed line(s)", changes))
	case changes == 0:
		return NewFailingResult(Violation{Rule: "diff_format", Severity: "error", Message: "Not a valid diff format: no addition or removal lines"})
	default:
		return NewFailingResult(Violation{Rule: "diff_format", Severity: "error", Message: "Not a valid diff format: missing diff header"})
	}
}

// scanDiffMarkers reports whether a diff header is present and how many
// addition/removal lines there are.
func scanDiffMarkers(body string) (bool, int) {
	header := false
	changes := 0
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "),
			strings.HasPrefix(line, "@@"), strings.HasPrefix(line, "diff "):
			header = true
		case strings.HasPrefix(line, "+"), strings.HasPrefix(line, "-"):
			changes++
		}
	}
	return header, changes
}

// FilePatch represents a unified diff for a single file.
type FilePatch struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

// Hunk represents a unified diff hunk.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []string
}

// Changes counts the hunk's addition and removal lines.
func (h Hunk) Changes() int {
	n := 0
	for _, line := range h.Lines {
		if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") {
			n++
		}
	}
	return n
}

// ParseUnifiedDiff parses a unified diff into file patches.
func ParseUnifiedDiff(input string) ([]FilePatch, error) {
	lines := strings.Split(input, "\n")
	var patches []FilePatch

	for i := 0; i < len(lines); {
		line := lines[i]
		if !strings.HasPrefix(line, "--- ") {
			i++
			continue
		}

		oldPath := parseDiffPath(line)
		i++
		if i >= len(lines) || !strings.HasPrefix(lines[i], "+++ ") {
			return nil, fmt.Errorf("expected +++ after --- for %s", oldPath)
		}
		newPath := parseDiffPath(lines[i])
		i++

		patch := FilePatch{OldPath: oldPath, NewPath: newPath}
		for i < len(lines) && strings.HasPrefix(lines[i], "@@") {
			hunk, next, err := parseHunk(lines, i)
			if err != nil {
				return nil, err
			}
			patch.Hunks = append(patch.Hunks, hunk)
			i = next
		}

		patches = append(patches, patch)
	}

	if len(patches) == 0 {
		return nil, fmt.Errorf("no unified diff content found")
	}
	return patches, nil
}

func parseDiffPath(line string) string {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "---"), "+++"))
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func parseHunk(lines []string, start int) (Hunk, int, error) {
	oldStart, oldLines, newStart, newLines, err := parseHunkHeader(lines[start])
	if err != nil {
		return Hunk{}, 0, err
	}

	hunk := Hunk{
		OldStart: oldStart,
		OldLines: oldLines,
		NewStart: newStart,
		NewLines: newLines,
	}

	i := start + 1
	for i < len(lines) {
		if strings.HasPrefix(lines[i], "@@") || strings.HasPrefix(lines[i], "--- ") {
			break
		}
		if strings.HasPrefix(lines[i], "\\") {
			i++
			continue
		}
		hunk.Lines = append(hunk.Lines, lines[i])
		i++
	}

	return hunk, i, nil
}

func parseHunkHeader(line string) (int, int, int, int, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(line, "@@"))
	if end := strings.Index(trimmed, "@@"); end >= 0 {
		trimmed = trimmed[:end]
	}
	fields := strings.Fields(trimmed)
	if len(fields) < 2 {
		return 0, 0, 0, 0, fmt.Errorf("invalid hunk header: %s", line)
	}

	oldStart, oldLines, err := parseHunkRange(fields[0], '-')
	if err != nil {
		return 0, 0, 0, 0, err
	}
	newStart, newLines, err := parseHunkRange(fields[1], '+')
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return oldStart, oldLines, newStart, newLines, nil
}

func parseHunkRange(value string, prefix byte) (int, int, error) {
	if len(value) == 0 || value[0] != prefix {
		return 0, 0, fmt.Errorf("invalid hunk range: %s", value)
	}

	parts := strings.SplitN(value[1:], ",", 2)
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hunk start: %s", value)
	}

	lines := 1
	if len(parts) == 2 {
		lines, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid hunk length: %s", value)
		}
	}

	return start, lines, nil
}
