package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thebtf/tabletalk/pkg/models"
)

func TestClassifyReply(t *testing.T) {
	tests := []struct {
		text string
		want replyKind
	}{
		{"yes", replyAffirmative},
		{"Yes!", replyAffirmative},
		{"ok", replyAffirmative},
		{"yes please", replyAffirmative},
		{"হ্যাঁ", replyAffirmative},
		{"hae", replyAffirmative},
		{"no", replyNegative},
		{"No, wait", replyNegative},
		{"cancel", replyNegative},
		{"না", replyNegative},
		{"", replyUnrelated},
		{"show my tables", replyUnrelated},
		{"yes and also add another 500 taka entry for lunch", replyUnrelated},
		{"maybe", replyUnrelated},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyReply(tt.text), "text %q", tt.text)
	}
}

func TestBuildProvenance_ExplicitEntities(t *testing.T) {
	in := models.Intent{
		Type:       models.IntentAdd,
		Categories: []string{"expenses"},
		Entities:   map[string]string{"amount": "5000", "date": "today"},
		Confidence: 1.0,
	}

	provenance := buildProvenance(in, nil)

	byField := make(map[string]models.FieldProvenance)
	for _, p := range provenance {
		byField[p.Field] = p
	}

	assert.Equal(t, models.SourceExplicit, byField["amount"].Source)
	assert.InDelta(t, explicitFieldConfidence, byField["amount"].Confidence, 0.001)
	assert.Equal(t, models.SourceExplicit, byField["date"].Source)
	assert.Equal(t, "expenses", byField["category"].Value)
	assert.InDelta(t, 1.0, byField["category"].Confidence, 0.001)
}

func TestBuildProvenance_AssumedDateForMutation(t *testing.T) {
	in := models.Intent{
		Type:       models.IntentAdd,
		Categories: []string{"expenses"},
		Confidence: 0.5,
	}

	provenance := buildProvenance(in, nil)

	var date *models.FieldProvenance
	for i := range provenance {
		if provenance[i].Field == "date" {
			date = &provenance[i]
		}
	}
	if assert.NotNil(t, date) {
		assert.Equal(t, "today", date.Value)
		assert.Equal(t, models.SourceHistory, date.Source)
		assert.InDelta(t, 0.4, date.Confidence, 0.001)
	}
}

func TestBuildProvenance_NoAssumedDateForReads(t *testing.T) {
	in := models.Intent{Type: models.IntentRetrieve, Confidence: 0.5}

	for _, p := range buildProvenance(in, nil) {
		assert.NotEqual(t, "date", p.Field)
	}
}

func TestBuildProvenance_HistoryDefaultsDoNotOverrideExplicit(t *testing.T) {
	in := models.Intent{
		Type:       models.IntentAdd,
		Entities:   map[string]string{"description": "groceries"},
		Confidence: 0.9,
	}
	defaults := map[string]models.FieldProvenance{
		"description": {Field: "description", Value: "lunch", Source: models.SourceHistory, Confidence: 0.5},
		"category":    {Field: "category", Value: "expenses", Source: models.SourceHistory, Confidence: 0.6},
	}

	provenance := buildProvenance(in, defaults)

	byField := make(map[string]models.FieldProvenance)
	for _, p := range provenance {
		byField[p.Field] = p
	}
	assert.Equal(t, "groceries", byField["description"].Value)
	assert.Equal(t, models.SourceExplicit, byField["description"].Source)
	assert.Equal(t, "expenses", byField["category"].Value)
	assert.Equal(t, models.SourceHistory, byField["category"].Source)
}

func TestLowConfidenceFields(t *testing.T) {
	provenance := []models.FieldProvenance{
		{Field: "amount", Confidence: 0.9},
		{Field: "category", Confidence: 0.5},
		{Field: "date", Confidence: 0.4},
	}

	low := lowConfidenceFields(provenance, 0.7)
	assert.Len(t, low, 2)

	assert.Empty(t, lowConfidenceFields(provenance, 0.3))
}

func TestConfirmationQuestionNamesInferredFields(t *testing.T) {
	question := confirmationQuestion(
		models.ToolCall{Name: "add-row"},
		[]models.FieldProvenance{
			{Field: "category", Value: "expenses"},
			{Field: "date", Value: "today"},
		})

	assert.Contains(t, question, "add-row")
	assert.Contains(t, question, "category = expenses")
	assert.Contains(t, question, "date = today")
}

func TestCleanResponseStripsStepPrefixes(t *testing.T) {
	in := "Step 1: listed tables\n**Step 2:** added the row\nAll done."
	out := cleanResponse(in)
	assert.NotContains(t, out, "Step 1")
	assert.NotContains(t, out, "Step 2")
	assert.Contains(t, out, "All done.")
}

func TestCleanResponseCapsLength(t *testing.T) {
	long := make([]byte, maxResponseLength+500)
	for i := range long {
		long[i] = 'a'
	}
	out := cleanResponse(string(long))
	assert.Len(t, out, maxResponseLength+3)
}
