// Package chart renders an index series as an ASCII line chart for a quick
// terminal preview. The unit baseline (1.0) is drawn as a dotted guide
// whenever it falls inside the plotted range.
package chart

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/derickschaefer/shelfindex/internal/model"
)

const dateLayout = "2006-01-02"

// PlotOptions controls rendering.
type PlotOptions struct {
	// Width is the total character width including the Y-axis labels.
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// Height is the number of rows in the chart body. If 0, defaults to 12.
	Height int
	// Title is printed above the chart.
	Title string
}

// Plot renders points, which must be in ascending time order, to w.
func Plot(w io.Writer, points []model.IndexPoint, opts PlotOptions) error {
	var valid []model.IndexPoint
	for _, p := range points {
		if !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0) {
			valid = append(valid, p)
		}
	}
	if len(valid) < 2 {
		return fmt.Errorf("chart: need at least 2 index points (got %d)", len(valid))
	}

	width := opts.Width
	if width <= 0 {
		width = termWidth()
	}
	height := opts.Height
	if height <= 0 {
		height = 12
	}

	lo, hi := bounds(valid)
	ticks := yTicks(lo, hi, height)
	labelWidth := 0
	for _, t := range ticks {
		if l := len(formatTick(t)); l > labelWidth {
			labelWidth = l
		}
	}
	plotWidth := width - labelWidth - 1
	if plotWidth < 10 {
		plotWidth = 10
	}

	cols := bucket(valid, plotWidth)
	grid := newGrid(height, plotWidth)
	if lo <= 1 && 1 <= hi {
		r := rowOf(1, lo, hi, height)
		for c := range grid[r] {
			grid[r][c] = '┄'
		}
	}
	drawLine(grid, cols, lo, hi)

	title := opts.Title
	if title == "" {
		title = "index"
	}
	first, last := valid[0].Time.UTC(), valid[len(valid)-1].Time.UTC()
	fmt.Fprintf(w, "%s  (%s to %s)\n", title, first.Format(dateLayout), last.Format(dateLayout))

	tickAt := make(map[int]string, len(ticks))
	for _, t := range ticks {
		tickAt[rowOf(t, lo, hi, height)] = formatTick(t)
	}
	for r, row := range grid {
		label, axis := tickAt[r], "│"
		if label != "" {
			axis = "┤"
		}
		fmt.Fprintf(w, "%*s%s%s\n", labelWidth, label, axis, string(row))
	}
	fmt.Fprintf(w, "%s└%s\n", strings.Repeat(" ", labelWidth), strings.Repeat("─", plotWidth))
	fmt.Fprintf(w, "%s %s\n", strings.Repeat(" ", labelWidth), xLabels(first.Format(dateLayout), last.Format(dateLayout), plotWidth))
	return nil
}

// ─── Grid ─────────────────────────────────────────────────────────────────────

func bounds(points []model.IndexPoint) (lo, hi float64) {
	lo, hi = points[0].Value, points[0].Value
	for _, p := range points[1:] {
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}
	return lo, hi
}

// bucket spreads points over n columns by time. Each column holds the mean
// of the points that fall into it, or NaN when none do.
func bucket(points []model.IndexPoint, n int) []float64 {
	start := points[0].Time
	span := points[len(points)-1].Time.Sub(start)
	sums := make([]float64, n)
	counts := make([]int, n)
	for _, p := range points {
		c := 0
		if span > 0 {
			c = int(float64(p.Time.Sub(start)) / float64(span) * float64(n-1))
		}
		sums[c] += p.Value
		counts[c]++
	}
	cols := make([]float64, n)
	for i := range cols {
		if counts[i] == 0 {
			cols[i] = math.NaN()
			continue
		}
		cols[i] = sums[i] / float64(counts[i])
	}
	return cols
}

func newGrid(height, width int) [][]rune {
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", width))
	}
	return grid
}

// rowOf maps v to a grid row; row 0 is the top (hi).
func rowOf(v, lo, hi float64, height int) int {
	if hi == lo {
		return height / 2
	}
	r := int(math.Round((hi - v) / (hi - lo) * float64(height-1)))
	return max(0, min(height-1, r))
}

// drawLine plots cols and joins consecutive known columns, carrying the
// previous level across empty columns as a step.
func drawLine(grid [][]rune, cols []float64, lo, hi float64) {
	height := len(grid)
	prev := -1
	for c, v := range cols {
		if math.IsNaN(v) {
			if prev >= 0 {
				grid[prev][c] = '─'
			}
			continue
		}
		r := rowOf(v, lo, hi, height)
		switch {
		case prev < 0 || prev == r:
			grid[r][c] = '─'
		case r < prev:
			grid[prev][c] = '╯'
			for i := r + 1; i < prev; i++ {
				grid[i][c] = '│'
			}
			grid[r][c] = '╭'
		default:
			grid[prev][c] = '╮'
			for i := prev + 1; i < r; i++ {
				grid[i][c] = '│'
			}
			grid[r][c] = '╰'
		}
		prev = r
	}
}

// ─── Axes ─────────────────────────────────────────────────────────────────────

// yTicks returns evenly spaced tick values from lo to hi.
func yTicks(lo, hi float64, height int) []float64 {
	if hi == lo {
		return []float64{lo}
	}
	n := 4
	if height <= 6 {
		n = 3
	}
	ticks := make([]float64, n)
	for i := range ticks {
		ticks[i] = lo + float64(i)*(hi-lo)/float64(n-1)
	}
	return ticks
}

func xLabels(first, last string, width int) string {
	buf := []rune(strings.Repeat(" ", width))
	copy(buf, []rune(first))
	if pos := width - len(last); pos > len(first) {
		copy(buf[pos:], []rune(last))
	}
	return string(buf)
}

// formatTick prints index values with three decimals, the precision the
// table presenter uses.
func formatTick(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// termWidth returns the terminal width from $COLUMNS, defaulting to 80.
func termWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 20 {
			return n
		}
	}
	return 80
}
