package analysis

import "strings"

type ChartType string

const (
	ChartNone    ChartType = ""
	ChartBar     ChartType = "bar"
	ChartLine    ChartType = "line"
	ChartPie     ChartType = "pie"
	ChartScatter ChartType = "scatter"
	ChartTable   ChartType = "table"
	ChartAuto    ChartType = "auto"
)

// Checked in order; the first chart whose keyword appears wins.
var chartKeywords = []struct {
	chart    ChartType
	keywords []string
}{
	{ChartBar, []string{"bar chart", "bar graph", "barchart", "batang"}},
	{ChartLine, []string{"line chart", "line graph", "trend", "time series", "tren", "grafik garis"}},
	{ChartPie, []string{"pie chart", "pie graph", "distribution", "proporsi", "persentase"}},
	{ChartScatter, []string{"scatter", "correlation", "korelasi", "sebaran"}},
	{ChartTable, []string{"table", "tabel", "list", "daftar"}},
}

var genericChartWords = []string{
	"chart", "graph", "plot", "visualize", "visualise", "show",
	"grafik", "visualisasi", "tampilkan", "lihat", "display",
}

// DetectChart guesses whether a request asks for a visualization. It returns
// ChartNone when nothing suggests one.
func DetectChart(prompt string) ChartType {
	lower := strings.ToLower(prompt)
	for _, group := range chartKeywords {
		if containsAny(lower, group.keywords) {
			return group.chart
		}
	}
	if !containsAny(lower, genericChartWords) {
		return ChartNone
	}
	switch {
	case containsAny(lower, []string{"over time", "by month", "by year"}):
		return ChartLine
	case containsAny(lower, []string{"compare", "comparison", " vs", "versus"}):
		return ChartBar
	case containsAny(lower, []string{"share", "percentage"}):
		return ChartPie
	default:
		return ChartAuto
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
