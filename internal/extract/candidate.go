package extract

// Field names shared by the extractor, the slot-filling memory and the store.
const (
	FieldProjectNumber = "project_number"
	FieldProjectName   = "project_name"
	FieldAmount        = "amount"
	FieldReason        = "reason"
)

// RequiredFields lists the business fields in their canonical order.
var RequiredFields = []string{FieldProjectNumber, FieldProjectName, FieldAmount, FieldReason}

// Candidate is one turn's extraction result. Any field may be empty; the
// Confidence map carries a [0,1] score per field name. Candidates are
// transient: they are merged into the session memory and never persisted.
type Candidate struct {
	ProjectNumber  string
	ProjectName    string
	Amount         float64
	Reason         string
	MissingFields  []string
	OriginalText   string
	TranslatedText string
	Confidence     map[string]float64
}

// FieldConfidence returns the candidate's score for a field, defaulting to
// 0.5 when the candidate carries no score for it.
func (c *Candidate) FieldConfidence(field string) float64 {
	if c.Confidence != nil {
		if v, ok := c.Confidence[field]; ok {
			return v
		}
	}
	return 0.5
}
