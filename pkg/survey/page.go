// Package survey models the bulk responses documents returned by the
// SurveyMonkey v3 API and flattens them into tabular records.
package survey

import (
	"encoding/json"
	"fmt"
)

// Link relation names used in Page.Links.
const (
	LinkSelf  = "self"
	LinkNext  = "next"
	LinkPrev  = "prev"
	LinkFirst = "first"
	LinkLast  = "last"
)

// Page is one decoded page of /v3/collectors/{id}/responses/bulk.
type Page struct {
	// Data is the ordered list of responses on this page.
	Data []Response `json:"data"`

	// Links maps relation names to URLs. The last page has no "next".
	Links map[string]string `json:"links"`

	// Total is the number of responses in the whole result set at fetch time.
	Total int `json:"total"`

	// Page is the 1-based page number reported by the API.
	Page int `json:"page,omitempty"`

	// PerPage is the page size reported by the API.
	PerPage int `json:"per_page,omitempty"`
}

// Next returns the URL of the following page, or "" on the last page.
func (p *Page) Next() string {
	return p.Links[LinkNext]
}

// Last returns the URL of the last page as known when this page was fetched.
func (p *Page) Last() string {
	return p.Links[LinkLast]
}

// Response is one respondent's submission.
type Response struct {
	ID          string          `json:"id"`
	SurveyID    string          `json:"survey_id"`
	CollectorID string          `json:"collector_id,omitempty"`
	EditURL     string          `json:"edit_url"`
	AnalyzeURL  string          `json:"analyze_url"`
	Href        string          `json:"href"`
	Pages       []QuestionGroup `json:"pages"`
}

// QuestionGroup is one survey page of a response.
type QuestionGroup struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Question holds the answers given to one question.
type Question struct {
	ID      string   `json:"id"`
	Answers []Answer `json:"answers"`
}

// Answer is a single answer. File upload answers carry a download URL and the
// uploaded file name in Text.
type Answer struct {
	ChoiceID    string  `json:"choice_id,omitempty"`
	RowID       string  `json:"row_id,omitempty"`
	Text        *string `json:"text,omitempty"`
	DownloadURL *string `json:"download_url,omitempty"`
}

// DecodePage parses a raw page body.
func DecodePage(data []byte) (*Page, error) {
	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &page, nil
}
