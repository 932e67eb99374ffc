package survey

// Columns are the exported column headers, in order.
var Columns = []string{
	"Survey ID",
	"Respondent ID",
	"Collector",
	"Edit URL",
	"Analyze URL",
	"API Link",
	"Node ID",
	"File Name",
	"Download URL",
}

// Record is one flat row: a response header plus at most one file upload
// answer. The answer fields are nil on the placeholder row of a response with
// no uploads.
type Record struct {
	SurveyID     string
	RespondentID string
	Collector    string
	EditURL      string
	AnalyzeURL   string
	APILink      string
	NodeID       *string
	FileName     *string
	DownloadURL  *string
}

// Row renders the record in Columns order. Nil fields become "".
func (r Record) Row() []string {
	return []string{
		r.SurveyID,
		r.RespondentID,
		r.Collector,
		r.EditURL,
		r.AnalyzeURL,
		r.APILink,
		deref(r.NodeID),
		deref(r.FileName),
		deref(r.DownloadURL),
	}
}

// HasDownload reports whether the record refers to an uploaded file.
func (r Record) HasDownload() bool {
	return r.DownloadURL != nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
