package dto

// CreateCustomMetricRequest defines a metric by formula. Variables are read
// from the formula's {{metric_key}} placeholders.
type CreateCustomMetricRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Formula     string `json:"formula"`
	Unit        string `json:"unit,omitempty"`
}

type UpdateCustomMetricRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Formula     *string `json:"formula,omitempty"`
	Unit        *string `json:"unit,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
}
