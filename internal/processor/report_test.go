package processor

import "testing"

func TestBuildReportSeriesAnalysis(t *testing.T) {
	payload := []byte("series_id\tyear\tperiod\tvalue\n" +
		"PRS30006011\t2021\tQ01\t1.5\n" +
		"PRS30006011\t2021\tQ02\t2.5\n" +
		"PRS30006011\t2022\tQ01\t3.0\n" +
		"PRS30006012\t2021\tQ01\t7.0\n")

	rep := BuildReport("pr.data.0.Current", 3, payload)

	if rep.SourceKey != "pr.data.0.Current" || rep.SourceVersion != 3 {
		t.Errorf("source fields: %+v", rep)
	}
	if rep.LineCount != 5 {
		t.Errorf("LineCount = %d, want 5", rep.LineCount)
	}
	if len(rep.Series) != 2 {
		t.Fatalf("series count = %d, want 2", len(rep.Series))
	}

	// Sorted by series id.
	first := rep.Series[0]
	if first.SeriesID != "PRS30006011" || first.Rows != 3 {
		t.Errorf("first series = %+v", first)
	}
	// 2021 totals 4.0, beating 2022's 3.0.
	if first.BestYear != 2021 || first.BestValue != 4.0 {
		t.Errorf("best year = %d (%v), want 2021 (4.0)", first.BestYear, first.BestValue)
	}

	second := rep.Series[1]
	if second.SeriesID != "PRS30006012" || second.BestYear != 2021 || second.BestValue != 7.0 {
		t.Errorf("second series = %+v", second)
	}
}

func TestBuildReportTieBreaksToEarlierYear(t *testing.T) {
	payload := []byte("S1\t2020\tQ01\t5.0\nS1\t2019\tQ01\t5.0\n")

	rep := BuildReport("k", 1, payload)
	if len(rep.Series) != 1 {
		t.Fatalf("series count = %d, want 1", len(rep.Series))
	}
	if rep.Series[0].BestYear != 2019 {
		t.Errorf("tie broke to %d, want 2019", rep.Series[0].BestYear)
	}
}

func TestBuildReportNonTabularPayload(t *testing.T) {
	payload := []byte(`{"data":[{"Nation":"United States","Population":332387540}]}`)

	rep := BuildReport("datasets/population.json", 1, payload)
	if len(rep.Series) != 0 {
		t.Errorf("non-tabular payload produced %d series", len(rep.Series))
	}
	if rep.SizeBytes != len(payload) {
		t.Errorf("SizeBytes = %d, want %d", rep.SizeBytes, len(payload))
	}
	if rep.LineCount != 1 {
		t.Errorf("LineCount = %d, want 1", rep.LineCount)
	}
}

func TestBuildReportSkipsMalformedRows(t *testing.T) {
	payload := []byte("series_id\tyear\tperiod\tvalue\n" +
		"S1\tnot-a-year\tQ01\t1.0\n" +
		"S1\t2021\tQ01\tnot-a-number\n" +
		"\t2021\tQ01\t1.0\n" +
		"S1\t2021\tQ01\t2.0\n")

	rep := BuildReport("k", 1, payload)
	if len(rep.Series) != 1 {
		t.Fatalf("series count = %d, want 1", len(rep.Series))
	}
	if rep.Series[0].Rows != 1 {
		t.Errorf("rows = %d, want 1 (malformed rows skipped)", rep.Series[0].Rows)
	}
}
