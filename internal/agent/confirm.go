package agent

import (
	"fmt"
	"strings"

	"github.com/thebtf/tabletalk/pkg/models"
)

// Confidence assigned to fields stated explicitly in the utterance.
const explicitFieldConfidence = 0.9

var affirmativeWords = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "sure": true,
	"ok": true, "okay": true, "confirm": true, "correct": true,
	"hae": true, "hya": true, "han": true, "হ্যাঁ": true, "হুম": true,
}

var negativeWords = map[string]bool{
	"no": true, "n": true, "nope": true, "cancel": true, "stop": true,
	"abort": true, "na": true, "don't": true, "dont": true, "না": true,
}

// reply classification for a turn that follows a confirmation question.
type replyKind int

const (
	replyUnrelated replyKind = iota
	replyAffirmative
	replyNegative
)

// classifyReply decides whether a short utterance answers a pending
// confirmation question. Anything that is not a clear yes or no is
// treated as a new, unrelated query.
func classifyReply(text string) replyKind {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.Trim(normalized, ".,!?")
	if normalized == "" {
		return replyUnrelated
	}
	if affirmativeWords[normalized] {
		return replyAffirmative
	}
	if negativeWords[normalized] {
		return replyNegative
	}
	// Multi-word replies count only when they lead with a clear signal:
	// "yes please", "no, wait".
	words := strings.Fields(normalized)
	first := strings.Trim(words[0], ".,!?")
	if affirmativeWords[first] && len(words) <= 3 {
		return replyAffirmative
	}
	if negativeWords[first] && len(words) <= 3 {
		return replyNegative
	}
	return replyUnrelated
}

// buildProvenance merges explicit entities, analyzer categories, and
// history-inferred defaults into a per-field provenance list.
func buildProvenance(in models.Intent, defaults map[string]models.FieldProvenance) []models.FieldProvenance {
	var out []models.FieldProvenance
	seen := make(map[string]bool)

	for field, value := range in.Entities {
		out = append(out, models.FieldProvenance{
			Field:      field,
			Value:      value,
			Source:     models.SourceExplicit,
			Confidence: explicitFieldConfidence,
		})
		seen[field] = true
	}

	// A detected category is only as certain as the classification
	// that produced it.
	if len(in.Categories) > 0 && !seen["category"] {
		out = append(out, models.FieldProvenance{
			Field:      "category",
			Value:      in.Categories[0],
			Source:     models.SourceExplicit,
			Confidence: in.Confidence,
		})
		seen["category"] = true
	}

	for field, prov := range defaults {
		if seen[field] {
			continue
		}
		out = append(out, prov)
		seen[field] = true
	}

	// A mutating add/update with no stated date gets "today" assumed,
	// at a discount of the overall classification confidence.
	if in.Type.Mutating() && !seen["date"] {
		out = append(out, models.FieldProvenance{
			Field:      "date",
			Value:      "today",
			Source:     models.SourceHistory,
			Confidence: in.Confidence * 0.8,
		})
	}

	return out
}

// lowConfidenceFields returns the provenance entries below threshold.
// These are the fields a confirmation question must name.
func lowConfidenceFields(provenance []models.FieldProvenance, threshold float64) []models.FieldProvenance {
	var low []models.FieldProvenance
	for _, p := range provenance {
		if p.Confidence < threshold {
			low = append(low, p)
		}
	}
	return low
}

// confirmationQuestion builds the human-readable question naming every
// inferred field held behind the gate.
func confirmationQuestion(call models.ToolCall, inferred []models.FieldProvenance) string {
	parts := make([]string, len(inferred))
	for i, p := range inferred {
		parts[i] = fmt.Sprintf("%s = %s", p.Field, p.Value)
	}
	return fmt.Sprintf(
		"Before I run %s, I had to infer: %s. Should I go ahead? (yes/no)",
		call.Name, strings.Join(parts, ", "))
}
