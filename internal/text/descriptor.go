package text

// Type selects how the template is chosen.
type Type string

const (
	TypeString Type = "string"
	TypePlural Type = "plural"
)

type ParameterType string

const (
	ParamString     ParameterType = "string"
	ParamNumber     ParameterType = "number"
	ParamDate       ParameterType = "date"
	ParamDateTime   ParameterType = "dateTime"
	ParamDaysSince  ParameterType = "daysSince"
	ParamDaysUntil  ParameterType = "daysUntil"
	ParamHoursSince ParameterType = "hoursSince"
	ParamHoursUntil ParameterType = "hoursUntil"
)

// Descriptor is a localized text with placeholders, as emitted by the
// wallet functions. Rendering happens on the client via Format.
type Descriptor struct {
	Type          Type              `json:"type"`
	LocalizedText map[string]string `json:"localizedText,omitempty"`

	// Plural selection: an explicit Quantity or the numeric value of
	// Parameters[QuantityParameterIndex].
	Quantity               *float64                     `json:"quantity,omitempty"`
	QuantityParameterIndex *int                         `json:"quantityParameterIndex,omitempty"`
	LocalizedQuantityText  map[string]map[string]string `json:"localizedQuantityText,omitempty"`

	Parameters []Parameter `json:"parameters"`
}

type Parameter struct {
	Type  ParameterType `json:"type"`
	Value any           `json:"value"`
	// Format optionally overrides the date layout (Go reference time).
	Format string `json:"format,omitempty"`
}
