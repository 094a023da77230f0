package agents

import (
	"strings"
	"unicode/utf8"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
)

// keywordRule maps any of its keywords to a label.
// Rules are evaluated in order and the first match wins.
type keywordRule struct {
	label    string
	keywords []string
}

// classify returns the label of the first rule with a keyword contained in text
func classify(text string, rules []keywordRule, fallback string) string {
	lower := strings.ToLower(text)
	for _, rule := range rules {
		if containsAny(lower, rule.keywords) {
			return rule.label
		}
	}
	return fallback
}

// matchAll returns the label of every rule with a keyword contained in text
func matchAll(text string, rules []keywordRule) []string {
	lower := strings.ToLower(text)
	var labels []string
	for _, rule := range rules {
		if containsAny(lower, rule.keywords) {
			labels = append(labels, rule.label)
		}
	}
	return labels
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// extractJSONArray returns the text between the first "[" and the last "]",
// after removing any Markdown code fence around it.
func extractJSONArray(text string) (string, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return "", &domain.ValidationError{Message: "no JSON array found in response"}
	}
	return text[start : end+1], nil
}

// bulletSections splits text into "- " bullets grouped under the most recent
// header that contains one of markers. Bullets before any header are dropped.
func bulletSections(text string, markers []string, onBullet func(section, item string)) {
	section := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)

		matched := false
		for _, marker := range markers {
			if strings.Contains(line, marker) {
				section = marker
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		if strings.HasPrefix(line, "- ") && section != "" {
			onBullet(section, line[2:])
		}
	}
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
