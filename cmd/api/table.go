package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"go-rash-triage/internal/triage"
	"go-rash-triage/pkg/models"
)

func renderResult(result *models.AnalysisResult) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Label", "Tier", "Match"})
	for _, score := range result.Labels {
		name := score.Name
		if score.Name == result.Top {
			name += " *"
		}
		tier, _ := triage.TierFor(score.Name)
		tw.AppendRow(table.Row{name, string(tier), fmt.Sprintf("%.2f", score.Match)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	var b strings.Builder
	b.WriteString(tw.Render())
	fmt.Fprintf(&b, "\nTop:        %s (confidence %.2f)", result.Top, result.Confidence)
	fmt.Fprintf(&b, "\nTriage:     %s", result.TriageLevel)
	if len(result.RedFlags) > 0 {
		fmt.Fprintf(&b, "\nRed flags:  %s", strings.Join(result.RedFlags, "; "))
	} else {
		b.WriteString("\nRed flags:  none")
	}
	if result.ImageQualityWarning != nil && *result.ImageQualityWarning != "" {
		fmt.Fprintf(&b, "\nImage:      %s", *result.ImageQualityWarning)
	}
	fmt.Fprintf(&b, "\n\n%s", result.Disclaimer)
	return b.String()
}
