package survey

// Flatten turns one page into flat records. collector is the partition the
// page was cached under and fills the Collector column.
//
// Every answer with a download URL becomes one record, in document order.
// A response without any becomes exactly one record with empty answer fields,
// so no respondent is dropped from the table.
func Flatten(collector string, page *Page) []Record {
	if page == nil {
		return nil
	}

	var records []Record
	for _, resp := range page.Data {
		header := Record{
			SurveyID:     resp.SurveyID,
			RespondentID: resp.ID,
			Collector:    collector,
			EditURL:      resp.EditURL,
			AnalyzeURL:   resp.AnalyzeURL,
			APILink:      resp.Href,
		}

		found := false
		for _, group := range resp.Pages {
			for _, question := range group.Questions {
				for _, answer := range question.Answers {
					if answer.DownloadURL == nil {
						continue
					}

					nodeID := question.ID
					r := header
					r.NodeID = &nodeID
					r.FileName = answer.Text
					r.DownloadURL = answer.DownloadURL
					records = append(records, r)
					found = true
				}
			}
		}

		if !found {
			records = append(records, header)
		}
	}

	return records
}
