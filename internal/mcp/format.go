package mcp

import (
	"fmt"
	"strings"

	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/search"
)

// FormatSearchResults renders a ranked search_skills result set as markdown.
// Each result carries the execution signature the agent needs to turn a
// discovery hit into an execute call without a second lookup.
func FormatSearchResults(query string, results []*search.SearchResult, m *manifest.Manifest) string {
	valid := results[:0:0]
	for _, r := range results {
		if r != nil && r.Document != nil {
			valid = append(valid, r)
		}
	}

	if len(valid) == 0 {
		return fmt.Sprintf("No tools found for \"%s\"", query)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Tools matching \"%s\"\n\n", query))
	sb.WriteString(fmt.Sprintf("Found %d tool", len(valid)))
	if len(valid) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range valid {
		formatResult(&sb, i+1, r, m)
	}

	return sb.String()
}

func formatResult(sb *strings.Builder, rank int, r *search.SearchResult, m *manifest.Manifest) {
	doc := r.Document

	sb.WriteString(fmt.Sprintf("### %d. `%s` (score: %.3f)\n\n", rank, doc.ID, r.Score))

	description := r.CompressedDescription
	if description == "" {
		description = doc.Description
	}
	if description != "" {
		sb.WriteString(description)
		sb.WriteString("\n\n")
	}

	if sig := signatureFor(m, doc.Skill, doc.Tool); sig != "" {
		sb.WriteString(fmt.Sprintf("**Run:** `%s`\n", sig))
	}
	if len(r.MatchedTerms) > 0 {
		sb.WriteString(fmt.Sprintf("**Matched:** %s\n", strings.Join(r.MatchedTerms, ", ")))
	}
	if r.InBothLists {
		sb.WriteString("**Found by:** keyword + semantic search\n")
	}
	sb.WriteString("\n")
}

// FormatSkillList renders a list_skills page as markdown.
func FormatSkillList(out ListSkillsOutput) string {
	if out.Total == 0 {
		return "No skills installed."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Installed Skills (%d–%d of %d)\n\n",
		out.Offset+1, out.Offset+len(out.Skills), out.Total))

	for _, sk := range out.Skills {
		sb.WriteString(fmt.Sprintf("### %s (%s)\n\n", sk.Name, sk.Runtime))
		if sk.Description != "" {
			sb.WriteString(sk.Description)
			sb.WriteString("\n\n")
		}
		if len(sk.Instances) > 0 {
			sb.WriteString(fmt.Sprintf("Instances: %s\n\n", strings.Join(sk.Instances, ", ")))
		}
		for _, t := range sk.Tools {
			sb.WriteString(fmt.Sprintf("- `%s`", t.Signature))
			if t.Description != "" {
				sb.WriteString(" — ")
				sb.WriteString(t.Description)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatExecutionResult renders one execute outcome as markdown.
func FormatExecutionResult(input ExecuteInput, out ExecuteOutput) string {
	instance := input.Instance
	if instance == "" {
		instance = "default"
	}
	id := manifest.ToolID(input.Skill, instance, input.Tool)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Executed `%s` (%d ms)\n\n", id, out.DurationMS))

	if len(out.Output) > 0 {
		sb.WriteString("```json\n")
		sb.Write(out.Output)
		sb.WriteString("\n```\n")
	} else {
		sb.WriteString("(no output)\n")
	}
	if out.Truncated {
		sb.WriteString("\n**Note:** output exceeded the size cap and was truncated.\n")
	}

	return sb.String()
}

// signatureFor resolves a skill/tool pair back to its execution signature;
// empty when the tool has disappeared from the manifest since indexing.
func signatureFor(m *manifest.Manifest, skillName, toolName string) string {
	if m == nil {
		return ""
	}
	sk, ok := m.Skills[skillName]
	if !ok {
		return ""
	}
	for _, t := range sk.Tools {
		if t.Name == toolName {
			return executionSignature(skillName, t)
		}
	}
	return ""
}

// executionSignature renders "skill:tool(param: type, ...)" with required
// parameters only, the compressed form the Context Compressor emits.
func executionSignature(skillName string, t *manifest.Tool) string {
	return t.Signature(skillName)
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit == 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
