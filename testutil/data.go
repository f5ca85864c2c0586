package testutil

// Measurement is a sample analysis request payload
type Measurement struct {
	ImageSet int      `json:"image_set"`
	Module   string   `json:"module"`
	Features []string `json:"features,omitempty"`
}

// TestMeasurements are generic analysis payloads
var TestMeasurements = []Measurement{
	{ImageSet: 1, Module: "IdentifyPrimaryObjects", Features: []string{"Count", "Location"}},
	{ImageSet: 2, Module: "MeasureObjectIntensity", Features: []string{"MeanIntensity"}},
	{ImageSet: 3, Module: "ExportToSpreadsheet"},
}

// TestPayloads are raw JSON payloads, including edge cases
var TestPayloads = []string{
	`{}`,
	`[]`,
	`{"nested": {"deep": [1, 2, 3]}}`,
	`"unicode: éè"`,
}
