// Package diagram turns a transcript-derived structured payload into a
// rendered Mermaid image. The flow is generate, normalize, render, and a
// synthesized fallback image when rendering fails, so the caller always
// receives image bytes once generation has succeeded.
package diagram

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/voicio/voicepipe/pkg/model"
	"github.com/voicio/voicepipe/pkg/prompts"
)

const defaultKind = "flowchart"

// Payload is the JSON object the generation model must return.
type Payload struct {
	DiagramType string `json:"diagram_type" jsonschema:"title=diagram_type,description=The Mermaid diagram kind such as flowchart or mindmap"`
	Title       string `json:"title" jsonschema:"title=title,description=A concise title for the diagram"`
	MermaidCode string `json:"mermaid_code" jsonschema:"title=mermaid_code,description=Complete Mermaid syntax for the diagram body"`
}

// Document is a composable Mermaid source file. Body holds statements only;
// the kind declaration and header comments are added by Compose.
type Document struct {
	Kind      string
	Title     string
	Body      string
	Author    string
	Timestamp string
}

// kindKeywords are Mermaid diagram declarations recognized at the start of a
// generated code body.
var kindKeywords = []string{
	"flowchart", "graph", "sequenceDiagram", "classDiagram",
	"stateDiagram-v2", "stateDiagram", "erDiagram", "journey",
	"gantt", "pie", "mindmap",
}

var kindPatterns = buildKindPatterns()

func buildKindPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(kindKeywords))
	for _, keyword := range kindKeywords {
		patterns[keyword] = regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(keyword) + `($|\s|TD|LR|RL|BT)`)
	}
	return patterns
}

// splitLeadingDeclaration detects a diagram-kind declaration on the first
// line of a code body and separates it from the statements below. Models
// often repeat the declaration inside mermaid_code even though the kind is
// carried in its own field.
func splitLeadingDeclaration(body string) (declaration string, rest string, found bool) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", "", false
	}

	firstLine, remainder, _ := strings.Cut(trimmed, "\n")
	firstLine = strings.TrimSpace(firstLine)
	for _, keyword := range kindKeywords {
		if kindPatterns[keyword].MatchString(firstLine) {
			return firstLine, strings.TrimSpace(remainder), true
		}
	}
	return "", trimmed, false
}

// DocumentFromPayload builds a Document from a generated payload. A kind
// declaration embedded in the code body wins over the diagram_type field
// because it may carry a direction suffix such as "flowchart TD".
func DocumentFromPayload(payload Payload) Document {
	kind := strings.TrimSpace(payload.DiagramType)
	declaration, body, found := splitLeadingDeclaration(payload.MermaidCode)
	if found {
		kind = declaration
	}
	if kind == "" {
		kind = defaultKind
	}

	return Document{
		Kind:  kind,
		Title: strings.TrimSpace(payload.Title),
		Body:  body,
	}
}

// BaseKind returns the kind declaration without any direction suffix, lower
// cased for comparisons ("flowchart TD" becomes "flowchart").
func (d Document) BaseKind() string {
	kind := strings.ToLower(strings.TrimSpace(d.Kind))
	for _, keyword := range kindKeywords {
		if strings.HasPrefix(kind, strings.ToLower(keyword)) {
			return strings.ToLower(keyword)
		}
	}
	kind, _, _ = strings.Cut(kind, " ")
	return kind
}

// Compose assembles the full Mermaid source: localized header comments,
// the kind declaration, and the body.
func (d Document) Compose(language model.Language) string {
	var builder strings.Builder
	builder.WriteString("%% " + prompts.DiagramHeader(language))
	builder.WriteString("\n%% " + d.Title)
	if d.Author != "" {
		builder.WriteString("\n%% Author: " + d.Author)
	}
	if d.Timestamp != "" {
		builder.WriteString(fmt.Sprintf("\n%%%% Time: %s (MSK)", d.Timestamp))
	}
	builder.WriteString("\n\n" + d.Kind + "\n" + d.Body)
	return builder.String()
}
