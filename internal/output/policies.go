package output

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/licitalens/licitalens/internal/config"
)

// PolicyRow is one rate-limit policy as shown to the operator.
type PolicyRow struct {
	Operation string        `json:"operation"`
	Limit     int           `json:"limit"`
	Window    time.Duration `json:"window"`
}

// PolicyRows flattens the configured policies, sorted by operation name so
// output is stable.
func PolicyRows(cfg config.RateLimitConfig) []PolicyRow {
	rows := make([]PolicyRow, 0, len(cfg.Policies))
	for name, policy := range cfg.Policies {
		rows = append(rows, PolicyRow{
			Operation: name,
			Limit:     policy.Limit,
			Window:    policy.Window,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Operation < rows[j].Operation })
	return rows
}

// FormatPolicies renders the policy rows in the requested format.
func FormatPolicies(format Format, rows []PolicyRow) (string, error) {
	if format == FormatJSON {
		type jsonRow struct {
			Operation string `json:"operation"`
			Limit     int    `json:"limit"`
			Window    string `json:"window"`
		}
		out := make([]jsonRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, jsonRow{
				Operation: row.Operation,
				Limit:     row.Limit,
				Window:    row.Window.String(),
			})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Operation", "Limit", "Window"})
	for _, row := range rows {
		t.AppendRow(table.Row{row.Operation, row.Limit, row.Window.String()})
	}
	return t.Render(), nil
}
