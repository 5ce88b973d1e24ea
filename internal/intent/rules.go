// Package intent classifies free-form utterances into scored intents.
package intent

import (
	"regexp"
	"strings"

	"github.com/thebtf/tabletalk/pkg/models"
)

// Rule is one ordered classification rule. Rules are evaluated in
// priority order; the first match sets the intent type.
type Rule struct {
	Label   models.IntentType
	Weight  float64
	pattern *regexp.Regexp
}

// Match reports whether the rule matches the normalized query.
func (r Rule) Match(query string) bool {
	return r.pattern.MatchString(query)
}

// NewRule compiles a rule from a keyword list. Keywords match on word
// boundaries so "add" does not fire on "address".
func NewRule(label models.IntentType, weight float64, keywords ...string) Rule {
	escaped := make([]string, len(keywords))
	for i, k := range keywords {
		escaped[i] = regexp.QuoteMeta(k)
	}
	return Rule{
		Label:   label,
		Weight:  weight,
		pattern: regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}])(` + strings.Join(escaped, "|") + `)($|[^\p{L}\p{N}])`),
	}
}

// DefaultRules is the default ordered rule table, covering English and
// romanized/script Bengali keywords.
func DefaultRules() []Rule {
	return []Rule{
		NewRule(models.IntentCreate, 0.4, "create", "make", "new", "setup", "start", "banao", "বানাও", "তৈরি"),
		NewRule(models.IntentRetrieve, 0.4, "show", "get", "list", "display", "fetch", "dekhao", "দেখাও"),
		NewRule(models.IntentAdd, 0.4, "add", "insert", "record", "log", "enter", "jog", "যোগ"),
		NewRule(models.IntentUpdate, 0.4, "update", "edit", "change", "modify", "bodlao", "বদলাও"),
		NewRule(models.IntentDelete, 0.4, "delete", "remove", "erase", "mucho", "মুছো"),
		NewRule(models.IntentAnalyze, 0.4, "analyze", "insight", "trend", "pattern", "compare", "bishleshon"),
	}
}

// DefaultCategories is the default category keyword table. Categories
// are independent: zero or more may match one utterance.
func DefaultCategories() map[string][]string {
	return map[string][]string{
		"expenses":  {"khoroch", "খরচ", "expense", "expenses", "cost", "spent", "buy", "purchase"},
		"income":    {"income", "revenue", "earned", "salary", "ay", "আয়"},
		"location":  {"sylhet", "dhaka", "chittagong", "travel", "home", "work"},
		"time":      {"daily", "monthly", "yearly", "ajk", "today", "gotokal", "yesterday"},
		"inventory": {"inventory", "stock", "supplies", "quantity"},
		"health":    {"exercise", "workout", "fitness", "meal", "weight", "sleep"},
	}
}

// dateKeywords maps relative date tags to their trigger keywords.
var dateKeywords = map[string][]string{
	"today":     {"ajk", "today", "আজ", "আজকে"},
	"yesterday": {"gotokal", "yesterday", "গতকাল"},
	"tomorrow":  {"kal", "tomorrow", "আগামীকাল"},
}

// periodKeywords maps time-period tags to their trigger keywords.
var periodKeywords = map[string][]string{
	"daily":   {"daily", "din", "দৈনিক"},
	"monthly": {"monthly", "month", "mas", "মাসিক"},
	"yearly":  {"yearly", "year", "bocor", "বাৎসরিক"},
}

// amountPattern matches the first numeric token adjacent to a currency
// or unit marker, in either order ("5000 taka" / "tk 5000").
var amountPattern = regexp.MustCompile(
	`(?i)(?:(\d+(?:\.\d+)?)\s*(?:tk|taka|bdt|৳|amount)|(?:tk|taka|bdt|৳|amount)\s*(\d+(?:\.\d+)?))`)

// descriptionPattern captures a short free-text description following
// "for" ("add 200 taka for groceries").
var descriptionPattern = regexp.MustCompile(`(?i)\bfor\s+([\p{L} ]{2,40})`)
