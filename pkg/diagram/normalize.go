package diagram

import (
	"regexp"
	"strings"
)

const (
	statementTerminator = ";"
	childIndent         = "  "
)

// Rule is one named body transformation. Every rule must be idempotent:
// applying it to its own output changes nothing. That keeps the whole
// normalization pass idempotent and lets each rule be tested in isolation.
type Rule struct {
	Name  string
	Apply func(kind string, body string) string
}

// defaultRules run in order. Fences and comments go first so the structural
// rules see statements only.
var defaultRules = []Rule{
	{Name: "strip-fences", Apply: stripFences},
	{Name: "strip-comments", Apply: stripComments},
	{Name: "escape-labels", Apply: escapeLabels},
	{Name: "enforce-single-root", Apply: enforceSingleRoot},
	{Name: "terminate-statements", Apply: terminateStatements},
}

// Normalize repairs a diagram code body for rendering. The kind steers
// tree-specific rules; the body comes back trimmed with every rule applied
// in order.
func Normalize(kind string, body string) string {
	for _, rule := range defaultRules {
		body = rule.Apply(kind, body)
	}
	return body
}

// stripFences drops Markdown code-fence lines the model wrapped around the
// diagram body.
func stripFences(_ string, body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Trim(strings.Join(kept, "\n"), "\n")
}

// stripComments removes %% comment lines. Header comments are composed at
// render time, so any the model emitted are noise.
func stripComments(_ string, body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "%%") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Trim(strings.Join(kept, "\n"), "\n")
}

var labelPattern = regexp.MustCompile(`\[([^\[\]]*)\]`)

// escapeLabels neutralizes characters inside [..] node labels that Mermaid
// treats as syntax. Double quotes become the #quot; entity and labels
// containing parentheses are wrapped in quotes so they are not parsed as
// shape markers.
func escapeLabels(_ string, body string) string {
	return labelPattern.ReplaceAllStringFunc(body, func(match string) string {
		inner := match[1 : len(match)-1]

		wrapped := len(inner) >= 2 && strings.HasPrefix(inner, `"`) && strings.HasSuffix(inner, `"`)
		core := inner
		if wrapped {
			core = inner[1 : len(inner)-1]
		}
		core = strings.ReplaceAll(core, `"`, "#quot;")

		if wrapped || strings.ContainsAny(core, "()") {
			return `["` + core + `"]`
		}
		return "[" + core + "]"
	})
}

// treeKinds require exactly one root-level statement.
var treeKinds = map[string]bool{
	"mindmap": true,
}

// enforceSingleRoot repairs tree-shaped bodies. With no root-level line the
// first content line is promoted to root and everything else indented under
// it. With several roots the first is kept and all later lines are demoted
// one level, so each extra subtree becomes a child of the first root. A body
// that already has exactly one root passes through untouched.
func enforceSingleRoot(kind string, body string) string {
	doc := Document{Kind: kind}
	if !treeKinds[doc.BaseKind()] {
		return body
	}

	lines := contentLines(body)
	if len(lines) == 0 {
		return body
	}

	var rootIndexes []int
	for i, line := range lines {
		if line == strings.TrimLeft(line, " \t") {
			rootIndexes = append(rootIndexes, i)
		}
	}

	switch len(rootIndexes) {
	case 1:
		return body
	case 0:
		repaired := []string{strings.TrimSpace(lines[0])}
		for _, line := range lines[1:] {
			repaired = append(repaired, childIndent+line)
		}
		return strings.Join(repaired, "\n")
	default:
		secondRoot := rootIndexes[1]
		repaired := append([]string{}, lines[:secondRoot]...)
		for _, line := range lines[secondRoot:] {
			repaired = append(repaired, childIndent+line)
		}
		return strings.Join(repaired, "\n")
	}
}

// terminateStatements suffixes every statement line with the terminator.
func terminateStatements(_ string, body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasSuffix(strings.TrimRight(line, " \t"), statementTerminator) {
			continue
		}
		lines[i] = strings.TrimRight(line, " \t") + statementTerminator
	}
	return strings.Join(lines, "\n")
}

func contentLines(body string) []string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
