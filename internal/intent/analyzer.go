package intent

import (
	"sort"
	"strings"

	"github.com/thebtf/tabletalk/pkg/models"
)

// Analyzer classifies raw query text into a scored intent. Rule and
// category tables are supplied at construction so locale-specific sets
// can be swapped without touching classification logic.
type Analyzer struct {
	rules      []Rule
	categories map[string][]string
}

// NewAnalyzer creates an analyzer with the default rule tables.
func NewAnalyzer() *Analyzer {
	return NewAnalyzerWithRules(DefaultRules(), DefaultCategories())
}

// NewAnalyzerWithRules creates an analyzer with custom tables.
func NewAnalyzerWithRules(rules []Rule, categories map[string][]string) *Analyzer {
	return &Analyzer{rules: rules, categories: categories}
}

// ExtractIntent classifies text into an intent with confidence in
// [0,1]. Empty or whitespace-only input yields IntentUnknown with
// confidence 0. ExtractIntent never fails.
func (a *Analyzer) ExtractIntent(text string) models.Intent {
	normalized, _, lang := Normalize(text)
	if normalized == "" {
		return models.Intent{Type: models.IntentUnknown, Language: models.LangEnglish}
	}

	intentType, weight := a.classify(normalized)
	categories := a.detectCategories(normalized)
	entities := extractEntities(normalized)

	return models.Intent{
		Type:       intentType,
		Categories: categories,
		Entities:   entities,
		Language:   lang,
		Confidence: score(weight, normalized, categories, entities),
	}
}

// classify runs the ordered rule table; first match wins. No match
// defaults to retrieve with reduced weight.
func (a *Analyzer) classify(query string) (models.IntentType, float64) {
	for _, rule := range a.rules {
		if rule.Match(query) {
			return rule.Label, rule.Weight
		}
	}
	return models.IntentRetrieve, 0.2
}

// detectCategories checks every category keyword set independently.
func (a *Analyzer) detectCategories(query string) []string {
	var detected []string
	for category, keywords := range a.categories {
		for _, kw := range keywords {
			if containsWord(query, kw) {
				detected = append(detected, category)
				break
			}
		}
	}
	sort.Strings(detected)
	return detected
}

// extractEntities pulls amount, relative date, period, and description
// out of the normalized query.
func extractEntities(query string) map[string]string {
	entities := make(map[string]string)

	if m := amountPattern.FindStringSubmatch(query); m != nil {
		amount := m[1]
		if amount == "" {
			amount = m[2]
		}
		entities["amount"] = amount
	}

	for tag, keywords := range dateKeywords {
		for _, kw := range keywords {
			if containsWord(query, kw) {
				if _, taken := entities["date"]; !taken {
					entities["date"] = tag
				}
				break
			}
		}
	}

	for tag, keywords := range periodKeywords {
		for _, kw := range keywords {
			if containsWord(query, kw) {
				entities["period"] = tag
				break
			}
		}
		if _, ok := entities["period"]; ok {
			break
		}
	}

	if m := descriptionPattern.FindStringSubmatch(query); m != nil {
		desc := strings.TrimSpace(m[1])
		desc = stripTrailingKeywords(desc)
		if desc != "" {
			entities["description"] = desc
		}
	}

	if len(entities) == 0 {
		return nil
	}
	return entities
}

// stripTrailingKeywords removes trailing date/period words from a
// captured description ("groceries today" -> "groceries").
func stripTrailingKeywords(desc string) string {
	words := strings.Fields(desc)
	for len(words) > 0 {
		last := words[len(words)-1]
		if isDateOrPeriodWord(last) {
			words = words[:len(words)-1]
			continue
		}
		break
	}
	return strings.Join(words, " ")
}

func isDateOrPeriodWord(word string) bool {
	for _, keywords := range dateKeywords {
		for _, kw := range keywords {
			if word == kw {
				return true
			}
		}
	}
	for _, keywords := range periodKeywords {
		for _, kw := range keywords {
			if word == kw {
				return true
			}
		}
	}
	return false
}

// score combines rule specificity with the count of independent signals
// matched, clamped to [0,1].
func score(ruleWeight float64, query string, categories []string, entities map[string]string) float64 {
	confidence := ruleWeight

	categoryBoost := 0.1 * float64(len(categories))
	if categoryBoost > 0.2 {
		categoryBoost = 0.2
	}
	confidence += categoryBoost

	if _, ok := entities["amount"]; ok {
		confidence += 0.15
	}
	if _, ok := entities["date"]; ok {
		confidence += 0.15
	}
	if _, ok := entities["period"]; ok {
		confidence += 0.05
	}
	if len(query) > 20 {
		confidence += 0.1
	}

	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

// containsWord reports whether query contains kw as a whole word.
func containsWord(query, kw string) bool {
	idx := 0
	for {
		i := strings.Index(query[idx:], kw)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(kw)
		beforeOK := start == 0 || isBoundary(rune(query[start-1]))
		afterOK := end == len(query) || isBoundary(rune(query[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isBoundary(r rune) bool {
	switch r {
	case ' ', '\t', '\n', ',', '.', '!', '?', ';', ':', '(', ')', '"', '\'':
		return true
	}
	return false
}
