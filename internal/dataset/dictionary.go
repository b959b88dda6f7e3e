package dataset

// DictionaryEntry describes one column in plain language. The JSON keys
// match what the UI client posts back on later calls.
type DictionaryEntry struct {
	Column      string `json:"Column"`
	Description string `json:"Description"`
}

// Column is a column name with its warehouse type name.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}
