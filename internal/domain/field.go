package domain

// FieldMeta describes one column of a scenario dataset.
type FieldMeta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	IsTarget    string `json:"is_target"`
}

// Target returns true if the column is the prediction target.
func (f FieldMeta) Target() bool {
	return f.IsTarget == "true"
}
