package export

import (
	"io"
	"sort"

	"github.com/Sternrassler/monscrape/pkg/survey"
	"github.com/jedib0t/go-pretty/v6/table"
)

// SurveySummary counts the exported rows of one survey.
type SurveySummary struct {
	SurveyID    string
	Respondents int
	Files       int
	Rows        int
}

// Summarize groups records by survey, ordered by survey id.
func Summarize(records []survey.Record) []SurveySummary {
	bySurvey := make(map[string]*SurveySummary)
	respondents := make(map[string]map[string]struct{})

	for _, r := range records {
		s, ok := bySurvey[r.SurveyID]
		if !ok {
			s = &SurveySummary{SurveyID: r.SurveyID}
			bySurvey[r.SurveyID] = s
			respondents[r.SurveyID] = make(map[string]struct{})
		}
		s.Rows++
		if r.HasDownload() {
			s.Files++
		}
		respondents[r.SurveyID][r.RespondentID] = struct{}{}
	}

	summaries := make([]SurveySummary, 0, len(bySurvey))
	for id, s := range bySurvey {
		s.Respondents = len(respondents[id])
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].SurveyID < summaries[j].SurveyID
	})
	return summaries
}

// RenderSummary writes a table of per-survey counts to w.
func RenderSummary(w io.Writer, collectorID string, records []survey.Record) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.SetTitle("Collector " + collectorID)
	t.AppendHeader(table.Row{"Survey ID", "Respondents", "Files", "Rows"})

	var respondents, files, rows int
	for _, s := range Summarize(records) {
		t.AppendRow(table.Row{s.SurveyID, s.Respondents, s.Files, s.Rows})
		respondents += s.Respondents
		files += s.Files
		rows += s.Rows
	}

	t.AppendFooter(table.Row{"Total", respondents, files, rows})
	t.Render()
}
