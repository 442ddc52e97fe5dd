// Package render formats analytics results as plain terminal tables.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/pantrycost/internal/analytics"
	"github.com/nixlim/pantrycost/internal/period"
)

const nameWidth = 22

// Names maps ingredient ids to display names. Missing ids render as the id.
type Names map[string]string

func (n Names) of(id string) string {
	if name, ok := n[id]; ok && name != "" {
		return name
	}
	return id
}

func title(s string) string {
	return titleStyle.Render(" "+s+" ") + "\n"
}

func rule(width int) string {
	return dimStyle.Render("  "+strings.Repeat("─", width)) + "\n"
}

func empty(msg string) string {
	return "\n" + dimStyle.Render("  "+msg) + "\n"
}

// truncate shortens s to width display cells, marking the cut with an
// ellipsis.
func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

func pad(s string, width int) string {
	s = truncate(s, width)
	return s + strings.Repeat(" ", width-lipgloss.Width(s))
}

func periodHeader(g period.Granularity) string {
	switch g {
	case period.Weekly:
		return "Week"
	case period.Monthly:
		return "Month"
	default:
		return "Date"
	}
}

// CostTrends renders one line per period followed by its ranked
// contributors. The change column compares each period's total with the
// previous listed period.
func CostTrends(periods []analytics.CostTrendPeriod, g period.Granularity) string {
	var sb strings.Builder
	sb.WriteString(title("Cost trends"))
	if len(periods) == 0 {
		sb.WriteString(empty("No price events in this window"))
		return sb.String()
	}

	sb.WriteString(headerStyle.Render(fmt.Sprintf("  %-12s %10s %10s %7s %8s",
		periodHeader(g), "Total", "Average", "Events", "Change")))
	sb.WriteByte('\n')
	sb.WriteString(rule(51))

	for i, p := range periods {
		change := dimStyle.Render(fmt.Sprintf("%8s", "-"))
		if i > 0 && periods[i-1].TotalCost > 0 {
			pct := (p.TotalCost - periods[i-1].TotalCost) / periods[i-1].TotalCost * 100
			change = changeStyle(pct).Render(fmt.Sprintf("%+7.1f%%", pct))
		}
		sb.WriteString(fmt.Sprintf("  %-12s %10.2f %10.2f %7d %s\n",
			p.Period, p.TotalCost, p.AverageCost, p.EventCount, change))
		for _, ri := range p.TopExpensiveIngredients {
			sb.WriteString(dimStyle.Render(fmt.Sprintf("      %s %8.2f %5.1f%%",
				pad(ri.Name, nameWidth), ri.AverageCostInPeriod, ri.PercentageOfPeriodTotal)))
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func changeStyle(pct float64) lipgloss.Style {
	switch {
	case pct > analytics.DefaultTrendThresholdPercent:
		return risingStyle
	case pct < -analytics.DefaultTrendThresholdPercent:
		return fallingStyle
	default:
		return flatStyle
	}
}

// Patterns renders one line per ingredient.
func Patterns(patterns []analytics.ConsumptionPattern, names Names) string {
	var sb strings.Builder
	sb.WriteString(title("Consumption patterns"))
	if len(patterns) == 0 {
		sb.WriteString(empty("No usage in this window"))
		return sb.String()
	}

	sb.WriteString(headerStyle.Render(fmt.Sprintf("  %s %9s %9s %9s %5s  %-10s",
		pad("Ingredient", nameWidth), "Average", "Peak", "Low", "Days", "Trend")))
	sb.WriteByte('\n')
	sb.WriteString(rule(nameWidth + 47))

	for _, p := range patterns {
		trend := trendStyle(p.Trend).Render(fmt.Sprintf("%-10s", p.Trend))
		sb.WriteString(fmt.Sprintf("  %s %9.2f %9.2f %9.2f %5d  %s",
			pad(names.of(p.IngredientID), nameWidth),
			p.AverageUsage, p.PeakUsage, p.LowUsage, p.ActiveDays, trend))
		if p.Seasonal {
			sb.WriteString(" " + seasonalStyle.Render("seasonal"))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func trendStyle(t analytics.Trend) lipgloss.Style {
	switch t {
	case analytics.TrendIncreasing:
		return risingStyle
	case analytics.TrendDecreasing:
		return fallingStyle
	default:
		return flatStyle
	}
}

// Heatmap renders one glyph per day, shaded by intensity.
func Heatmap(rows []analytics.UsageHeatmapRow) string {
	var sb strings.Builder
	sb.WriteString(title("Usage heatmap"))
	if len(rows) == 0 {
		sb.WriteString(empty("No usage in this window"))
		return sb.String()
	}

	days := rows[0].DailyUsage
	if len(days) > 0 {
		first := days[0].Date.Format("Jan 02")
		last := days[len(days)-1].Date.Format("Jan 02")
		sb.WriteString(headerStyle.Render(fmt.Sprintf("  %s %s → %s", pad("Ingredient", nameWidth), first, last)))
		sb.WriteByte('\n')
	}
	sb.WriteString(rule(nameWidth + 1 + len(days)))

	for _, row := range rows {
		var cells strings.Builder
		var total float64
		for _, c := range row.DailyUsage {
			cells.WriteString(shade(c.Intensity))
			total += c.Usage
		}
		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			pad(row.Name, nameWidth), cells.String(), dimStyle.Render(fmt.Sprintf("%.1f", total))))
	}
	return sb.String()
}

func shade(intensity float64) string {
	if intensity <= 0 {
		return heatShades[0].Render(heatGlyphs[0])
	}
	i := int(intensity*float64(len(heatGlyphs)-1) + 0.5)
	i = max(1, min(i, len(heatGlyphs)-1))
	return heatShades[i].Render(heatGlyphs[i])
}

// Report renders all three sections of a report.
func Report(r *analytics.Report, names Names) string {
	var sb strings.Builder
	sb.WriteString(dimStyle.Render(fmt.Sprintf("report %s  window %s → %s",
		r.ID, r.Window.Start.Format("2006-01-02"), r.Window.End.Format("2006-01-02"))))
	sb.WriteString("\n\n")
	sb.WriteString(CostTrends(r.CostTrends, r.Granularity))
	sb.WriteByte('\n')
	sb.WriteString(Patterns(r.Patterns, names))
	sb.WriteByte('\n')
	sb.WriteString(Heatmap(r.Heatmap))
	if len(r.UnresolvedIngredients) > 0 {
		sb.WriteByte('\n')
		sb.WriteString(seasonalStyle.Render(fmt.Sprintf("  %d unresolved ingredient ids: %s",
			len(r.UnresolvedIngredients), strings.Join(r.UnresolvedIngredients, ", "))))
		sb.WriteByte('\n')
	}
	return sb.String()
}
