package policydiff

import (
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s → %s\n", r.OldPath, r.NewPath)

	scalars, sections := splitChanges(r.Changes)
	if len(scalars) > 0 {
		b.WriteString("\n")
		for _, c := range scalars {
			fmt.Fprintf(&b, "  %-30s %s → %s", c.Field+":", c.Old, c.New)
			if c.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", c.Comment)
			}
			b.WriteString("\n")
		}
	}

	if len(r.RuleChanges) > 0 {
		b.WriteString("\n  Rules:\n")
		for _, rc := range r.RuleChanges {
			sign := "+"
			if rc.Type == "removed" {
				sign = "-"
			}
			fmt.Fprintf(&b, "    %s %s: %s\n", sign, rc.Section, rc.Rule)
		}
	}

	if len(sections) > 0 {
		b.WriteString("\n")
		for _, c := range sections {
			switch c.Comment {
			case "added":
				fmt.Fprintf(&b, "  %s: + %s\n", c.Field, c.New)
			case "removed":
				fmt.Fprintf(&b, "  %s: - %s\n", c.Field, c.Old)
			}
		}
	}

	if stricter, looser := countDirection(r.Changes); stricter+looser > 0 {
		fmt.Fprintf(&b, "\nSummary: %d stricter, %d looser\n", stricter, looser)
	}
	return b.String()
}

func countDirection(changes []Change) (stricter, looser int) {
	for _, c := range changes {
		switch c.Comment {
		case "stricter":
			stricter++
		case "looser":
			looser++
		}
	}
	return stricter, looser
}

func splitChanges(changes []Change) (scalars, sections []Change) {
	for _, c := range changes {
		if c.Field == "agents" || c.Field == "alerts" {
			sections = append(sections, c)
		} else {
			scalars = append(scalars, c)
		}
	}
	return scalars, sections
}
