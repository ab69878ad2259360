package render

import (
	"fmt"

	"github.com/derickschaefer/shelfindex/internal/model"
)

// DateLayout is the ISO date used for every presented label.
const DateLayout = "2006-01-02"

// BuildTable turns index points into display rows: ISO date and the value
// rounded to three decimals. Input order is preserved.
func BuildTable(points []model.IndexPoint) []model.TableRow {
	rows := make([]model.TableRow, len(points))
	for i, p := range points {
		rows[i] = model.TableRow{
			Date:  p.Time.UTC().Format(DateLayout),
			Value: fmt.Sprintf("%.3f", p.Value),
		}
	}
	return rows
}

// BuildChart turns index points into parallel label/value arrays.
// Values are not rounded.
func BuildChart(points []model.IndexPoint) model.ChartData {
	cd := model.ChartData{
		Labels: make([]string, len(points)),
		Values: make([]float64, len(points)),
	}
	for i, p := range points {
		cd.Labels[i] = p.Time.UTC().Format(DateLayout)
		cd.Values[i] = p.Value
	}
	return cd
}
