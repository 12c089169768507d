package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rendis/geodrill/internal/model"
)

var csvHeader = []string{
	"level", "metric", "period", "region_code", "region_name",
	"value", "change_rate", "percentile", "status", "computed_at",
}

// WriteCSV writes records for q as CSV with a header row. Missing numbers
// are written as empty cells.
func WriteCSV(w io.Writer, q Query, records []model.KPIRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	level := q.Level.DataLevel().String()
	for _, r := range records {
		computed := ""
		if !r.ComputedAt.IsZero() {
			computed = r.ComputedAt.UTC().Format(time.RFC3339)
		}
		status := r.Status
		if status == "" {
			status = model.StatusNormal
		}
		row := []string{
			level, q.Metric, q.Time, r.RegionCode, r.RegionName,
			csvFloat(r.Value), csvFloat(r.ChangeRate), csvFloat(r.Percentile),
			string(status), computed,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing %s: %w", r.RegionCode, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
