package llm

import "strings"

// ParseAdvice splits model output into items, one per non-blank line. Lines of the
// form "... **Heading:** content" keep the bold part as the heading; colons are
// dropped from the content. Anything else becomes a heading-less item.
func ParseAdvice(text string) []AdviceItem {
	var items []AdviceItem
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "**")
		if len(parts) < 3 {
			items = append(items, AdviceItem{Text: line})
			continue
		}
		heading := strings.TrimSuffix(strings.TrimSpace(parts[1]), ":")
		content := strings.TrimSpace(strings.ReplaceAll(parts[2], ":", ""))
		items = append(items, AdviceItem{Heading: strings.TrimSpace(heading), Text: content})
	}
	return items
}
