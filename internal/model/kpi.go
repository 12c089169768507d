package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the alert status attached to a KPI record.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// ParseStatus maps source status strings onto the three known states.
// Some backends report "alert" for the critical bucket.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warning", "warn":
		return StatusWarning
	case "critical", "alert":
		return StatusCritical
	}
	return StatusNormal
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decoding status: %w", err)
	}
	*s = ParseStatus(raw)
	return nil
}

// KPIRecord is one statistical record for one region.
type KPIRecord struct {
	RegionCode string    `json:"region_code"`
	RegionName string    `json:"region_name"`
	Value      *float64  `json:"value"`
	ChangeRate *float64  `json:"change_rate"`
	Percentile *float64  `json:"percentile"`
	Status     Status    `json:"status"`
	ComputedAt time.Time `json:"computed_at"`
}

// UnmarshalJSON coerces numeric region codes to their string form so that
// records join against canonical boundary codes by string equality.
func (r *KPIRecord) UnmarshalJSON(b []byte) error {
	type alias KPIRecord
	aux := struct {
		RegionCode json.RawMessage `json:"region_code"`
		ComputedAt string          `json:"computed_at"`
		*alias
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	code, err := rawCode(aux.RegionCode)
	if err != nil {
		return err
	}
	r.RegionCode = code
	if aux.ComputedAt != "" {
		if t, err := time.Parse(time.RFC3339, aux.ComputedAt); err == nil {
			r.ComputedAt = t
		}
	}
	if r.Status == "" {
		r.Status = StatusNormal
	}
	return nil
}

func rawCode(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("decoding region_code %s: %w", raw, err)
	}
	return n.String(), nil
}

// HasValue reports whether the record carries a usable numeric value.
func (r KPIRecord) HasValue() bool {
	return r.Value != nil
}

// Float returns a pointer to v, for building records in code.
func Float(v float64) *float64 {
	return &v
}

// RankEntry is one row of a ranking list.
type RankEntry struct {
	RegionCode string   `json:"region_code"`
	RegionName string   `json:"region_name"`
	Value      *float64 `json:"value"`
}

// Ranking is a top/bottom list for one level and metric.
type Ranking struct {
	Top    []RankEntry `json:"top"`
	Bottom []RankEntry `json:"bottom"`
}

// TrendPoint is one time-series point for one region.
type TrendPoint struct {
	Time  string   `json:"time"`
	Value *float64 `json:"value"`
}

// FormatValue renders an optional number for tables and logs.
func FormatValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
