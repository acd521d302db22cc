package monitor

import "strings"

const maxDiffLines = 40

// lineDiff produces a compact removed/added line summary between two
// snapshots. It is set-based rather than positional: good enough for a
// human-readable webhook payload, not a patch format.
func lineDiff(previous, current []byte, maxLines int) string {
	prevLines := splitLines(previous)
	currLines := splitLines(current)

	prevSet := make(map[string]struct{}, len(prevLines))
	for _, line := range prevLines {
		prevSet[line] = struct{}{}
	}
	currSet := make(map[string]struct{}, len(currLines))
	for _, line := range currLines {
		currSet[line] = struct{}{}
	}

	var out []string
	for _, line := range prevLines {
		if _, ok := currSet[line]; !ok {
			out = append(out, "- "+line)
			if len(out) >= maxLines {
				return truncated(out)
			}
		}
	}
	for _, line := range currLines {
		if _, ok := prevSet[line]; !ok {
			out = append(out, "+ "+line)
			if len(out) >= maxLines {
				return truncated(out)
			}
		}
	}
	return strings.Join(out, "\n")
}

func truncated(lines []string) string {
	return strings.Join(append(lines, "..."), "\n")
}

func splitLines(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
