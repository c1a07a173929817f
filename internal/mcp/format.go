package mcp

import (
	"fmt"
	"strings"
)

// FormatSearchResults renders search_code output as markdown.
func FormatSearchResults(out SearchCodeOutput) string {
	if len(out.Results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", out.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", out.Query)
	fmt.Fprintf(&sb, "Found %d result", len(out.Results))
	if len(out.Results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for _, r := range out.Results {
		formatResult(&sb, r)
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, r SearchResultOutput) {
	fmt.Fprintf(sb, "### %d. %s%s (score: %.2f)\n", r.Rank, r.FilePath, lineRange(r.StartLine, r.EndLine), r.Score)
	if reason := matchReason(r.MatchTypes); reason != "" {
		fmt.Fprintf(sb, "_%s_\n", reason)
	}
	sb.WriteString("\n")

	lang := LanguageForPath(r.FilePath)
	content := strings.TrimRight(r.Content, "\n")
	if r.Before != "" {
		fmt.Fprintf(sb, "<details><summary>before</summary>\n\n```%s\n%s\n```\n</details>\n\n", lang, strings.TrimRight(r.Before, "\n"))
	}
	fmt.Fprintf(sb, "```%s\n%s\n```\n\n", lang, content)
	if r.After != "" {
		fmt.Fprintf(sb, "<details><summary>after</summary>\n\n```%s\n%s\n```\n</details>\n\n", lang, strings.TrimRight(r.After, "\n"))
	}
}

func lineRange(start, end int) string {
	switch {
	case start <= 0:
		return ""
	case end <= start:
		return fmt.Sprintf(":%d", start)
	default:
		return fmt.Sprintf(":%d-%d", start, end)
	}
}

// matchReason explains which strategies agreed on a result.
func matchReason(types []string) string {
	switch len(types) {
	case 0:
		return ""
	case 1:
		return "matched by " + types[0]
	default:
		return fmt.Sprintf("matched by %d strategies: %s", len(types), strings.Join(types, ", "))
	}
}
