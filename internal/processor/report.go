package processor

import (
	"bufio"
	"bytes"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Report is the derived output stored for each processed object. Tabular
// payloads get per-series analysis; anything else gets a byte summary.
type Report struct {
	SourceKey     string         `json:"sourceKey"`
	SourceVersion int            `json:"sourceVersion"`
	GeneratedAt   time.Time      `json:"generatedAt"`
	SizeBytes     int            `json:"sizeBytes"`
	LineCount     int            `json:"lineCount"`
	Series        []SeriesReport `json:"series,omitempty"`
}

// SeriesReport summarizes one series: the year with the highest total value
// across its rows, ties broken by the earlier year.
type SeriesReport struct {
	SeriesID  string  `json:"seriesId"`
	Rows      int     `json:"rows"`
	BestYear  int     `json:"bestYear"`
	BestValue float64 `json:"bestValue"`
}

func (r *Report) Encode() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// BuildReport derives a report from a raw payload. Rows that do not parse as
// tab-separated series_id/year/value are counted but otherwise skipped, so a
// header line or a malformed row never fails the whole object.
func BuildReport(sourceKey string, version int, payload []byte) *Report {
	rep := &Report{
		SourceKey:     sourceKey,
		SourceVersion: version,
		GeneratedAt:   time.Now().UTC(),
		SizeBytes:     len(payload),
	}

	type yearTotal struct {
		rows   int
		totals map[int]float64
	}
	series := map[string]*yearTotal{}

	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		rep.LineCount++

		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 4 {
			continue
		}
		id := strings.TrimSpace(fields[0])
		year, errY := strconv.Atoi(strings.TrimSpace(fields[1]))
		value, errV := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
		if id == "" || errY != nil || errV != nil {
			continue
		}

		st, ok := series[id]
		if !ok {
			st = &yearTotal{totals: map[int]float64{}}
			series[id] = st
		}
		st.rows++
		st.totals[year] += value
	}

	for id, st := range series {
		bestYear, bestValue := 0, 0.0
		for year, total := range st.totals {
			if bestYear == 0 || total > bestValue || (total == bestValue && year < bestYear) {
				bestYear, bestValue = year, total
			}
		}
		rep.Series = append(rep.Series, SeriesReport{
			SeriesID:  id,
			Rows:      st.rows,
			BestYear:  bestYear,
			BestValue: bestValue,
		})
	}
	sort.Slice(rep.Series, func(i, j int) bool {
		return rep.Series[i].SeriesID < rep.Series[j].SeriesID
	})

	return rep
}
