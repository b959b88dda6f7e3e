package parse

import "strings"

// NoChart is the chart type reported when the model says no chart fits.
const NoChart = "None"

// ChartSuggestion is the parsed three-line chart answer. A nil field means
// the line was missing or, for the axes, explicitly "none". A label with
// nothing after its colon yields an empty string.
type ChartSuggestion struct {
	ChartType *string `json:"chart_type"`
	XAxis     *string `json:"x_axis"`
	YAxis     *string `json:"y_axis"`
}

// HasChart reports whether a concrete chart type was suggested.
func (c ChartSuggestion) HasChart() bool {
	return c.ChartType != nil && *c.ChartType != "" && *c.ChartType != NoChart
}

// ParseChart takes, for each of "chart type", "x-axis" and "y-axis", the
// first line starting with that label and keeps the text after its first
// colon. Chart type "none" becomes NoChart; axis "none" becomes nil.
func ParseChart(text string) ChartSuggestion {
	var out ChartSuggestion
	if value, ok := labelledValue(text, "chart type"); ok {
		if strings.EqualFold(value, "none") {
			value = NoChart
		}
		out.ChartType = &value
	}
	out.XAxis = axisValue(text, "x-axis")
	out.YAxis = axisValue(text, "y-axis")
	return out
}

func axisValue(text, label string) *string {
	value, ok := labelledValue(text, label)
	if !ok || strings.EqualFold(value, "none") {
		return nil
	}
	return &value
}

func labelledValue(text, label string) (string, bool) {
	for _, line := range splitLines(text) {
		line = strings.TrimLeft(strings.TrimSpace(line), "-*• ")
		if !strings.HasPrefix(strings.ToLower(line), label) {
			continue
		}
		_, after, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		return strings.Trim(after, " \t*`'\""), true
	}
	return "", false
}
