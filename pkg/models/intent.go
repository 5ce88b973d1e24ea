package models

// IntentType classifies the purpose of one user utterance.
type IntentType string

const (
	IntentCreate   IntentType = "create"
	IntentRetrieve IntentType = "retrieve"
	IntentAdd      IntentType = "add"
	IntentUpdate   IntentType = "update"
	IntentDelete   IntentType = "delete"
	IntentAnalyze  IntentType = "analyze"
	IntentUnknown  IntentType = "unknown"
)

// Valid reports whether t is one of the fixed intent types.
func (t IntentType) Valid() bool {
	switch t {
	case IntentCreate, IntentRetrieve, IntentAdd, IntentUpdate, IntentDelete, IntentAnalyze, IntentUnknown:
		return true
	}
	return false
}

// Mutating reports whether this intent type implies a data mutation.
func (t IntentType) Mutating() bool {
	switch t {
	case IntentCreate, IntentAdd, IntentUpdate, IntentDelete:
		return true
	}
	return false
}

// FieldSource describes where a field value came from.
type FieldSource string

const (
	SourceExplicit FieldSource = "explicit" // stated in the current utterance
	SourceHistory  FieldSource = "history"  // inferred from the rolling context window
)

// FieldProvenance records the origin and certainty of one resolved field.
type FieldProvenance struct {
	Field      string      `json:"field"`
	Value      string      `json:"value"`
	Source     FieldSource `json:"source"`
	Confidence float64     `json:"confidence"`
}

// Intent is the transient classification of one utterance. Not persisted.
type Intent struct {
	Type       IntentType        `json:"type"`
	Categories []string          `json:"categories,omitempty"`
	Entities   map[string]string `json:"entities,omitempty"`
	Language   Language          `json:"language"`
	Confidence float64           `json:"confidence"`

	// Provenance tracks per-field origin after defaults are merged in.
	Provenance []FieldProvenance `json:"provenance,omitempty"`
}

// Language tags the dominant language of an utterance.
type Language string

const (
	LangEnglish Language = "en"
	LangBengali Language = "bn"
	LangMixed   Language = "mixed"
)

// Snapshot converts the intent into a rolling-window context entry.
func (in Intent) Snapshot(hourOfDay int, description string) ContextSnapshot {
	return ContextSnapshot{
		IntentType:  in.Type,
		Categories:  in.Categories,
		Description: description,
		Entities:    in.Entities,
		HourOfDay:   hourOfDay,
		Confidence:  in.Confidence,
	}
}
