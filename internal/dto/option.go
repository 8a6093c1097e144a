package dto

// Option is one choice of a filter control. Value keeps the identifier's
// JSON type (number or string) so selections compare equal to click-through
// values for the same entity.
type Option struct {
	Value any    `json:"value"`
	Label string `json:"label"`
}
