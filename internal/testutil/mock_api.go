// Package testutil provides a fake SurveyMonkey bulk responses API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/Sternrassler/monscrape/pkg/survey"
)

// DefaultPerPage is the page size used when a request carries no per_page.
const DefaultPerPage = 2

// MockAPI serves /v3/collectors/{id}/responses/bulk from an in-memory list
// of responses. Pages carry absolute self/next/prev/last links built from the
// server URL, so the result set can grow or shrink between walks.
type MockAPI struct {
	server *httptest.Server

	mu         sync.Mutex
	responses  []survey.Response
	perPage    int
	statusCode int
	headers    map[string]string

	// Tracking
	requests          map[string]int
	requestCount      int
	lastAuthorization string
}

// NewMockAPI creates a new fake API serving responses.
func NewMockAPI(responses []survey.Response) *MockAPI {
	mock := &MockAPI{
		responses: responses,
		perPage:   DefaultPerPage,
		headers:   make(map[string]string),
		requests:  make(map[string]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Client returns an HTTP client for the mock server.
func (m *MockAPI) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetResponses replaces the served result set.
func (m *MockAPI) SetResponses(responses []survey.Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
}

// SetPerPage changes the default page size.
func (m *MockAPI) SetPerPage(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perPage = n
}

// SetStatus makes every request fail with code. Zero restores normal pages.
func (m *MockAPI) SetStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCode = code
}

// SetHeader adds a header to every response.
func (m *MockAPI) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[string]int)
	m.requestCount = 0
	m.lastAuthorization = ""
}

// RequestCount returns the number of requests made to the server.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// RequestsFor returns the number of requests for a URL, absolute or relative.
func (m *MockAPI) RequestsFor(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[strings.TrimPrefix(url, m.server.URL)]
}

// LastAuthorization returns the Authorization header of the latest request.
func (m *MockAPI) LastAuthorization() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuthorization
}

// PageURL returns the absolute URL the server links to for page n.
func (m *MockAPI) PageURL(collectorID string, n, perPage int) string {
	return fmt.Sprintf("%s/v3/collectors/%s/responses/bulk?page=%d&per_page=%d",
		m.server.URL, collectorID, n, perPage)
}

func (m *MockAPI) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	m.requests[r.URL.RequestURI()]++
	m.lastAuthorization = r.Header.Get("Authorization")
	responses := m.responses
	perPage := m.perPage
	statusCode := m.statusCode
	headers := make(map[string]string, len(m.headers))
	for k, v := range m.headers {
		headers[k] = v
	}
	m.mu.Unlock()

	for key, value := range headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	collectorID, ok := parseBulkPath(r.URL.Path)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": {"message": "Resource not found"}}`))
		return
	}

	if statusCode != 0 {
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"error": {"message": %q}}`, http.StatusText(statusCode))
		return
	}

	pageNum := queryInt(r, "page", 1)
	perPage = queryInt(r, "per_page", perPage)

	page := m.buildPage(collectorID, responses, pageNum, perPage)
	body, err := json.Marshal(page)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (m *MockAPI) buildPage(collectorID string, responses []survey.Response, pageNum, perPage int) survey.Page {
	total := len(responses)
	lastPage := (total + perPage - 1) / perPage
	if lastPage == 0 {
		lastPage = 1
	}

	page := survey.Page{
		Data:    []survey.Response{},
		Total:   total,
		Page:    pageNum,
		PerPage: perPage,
		Links: map[string]string{
			survey.LinkSelf:  m.PageURL(collectorID, pageNum, perPage),
			survey.LinkFirst: m.PageURL(collectorID, 1, perPage),
			survey.LinkLast:  m.PageURL(collectorID, lastPage, perPage),
		},
	}

	// Pages past the end are empty and have no next.
	start := (pageNum - 1) * perPage
	if start < total {
		end := min(start+perPage, total)
		page.Data = append(page.Data, responses[start:end]...)
	}
	if pageNum < lastPage {
		page.Links[survey.LinkNext] = m.PageURL(collectorID, pageNum+1, perPage)
	}
	if pageNum > 1 {
		page.Links[survey.LinkPrev] = m.PageURL(collectorID, pageNum-1, perPage)
	}

	return page
}

func parseBulkPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 5 || parts[0] != "v3" || parts[1] != "collectors" ||
		parts[3] != "responses" || parts[4] != "bulk" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

func queryInt(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

// MakeResponses builds n responses for surveyID. Every response has one file
// upload answer except each third one, which has none.
func MakeResponses(surveyID string, n int) []survey.Response {
	responses := make([]survey.Response, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("%s-r%03d", surveyID, i)
		resp := survey.Response{
			ID:         id,
			SurveyID:   surveyID,
			EditURL:    "https://www.surveymonkey.com/r/edit/" + id,
			AnalyzeURL: "https://www.surveymonkey.com/analyze/browse/" + id,
			Href:       "https://api.surveymonkey.net/v3/responses/" + id,
		}
		if i%3 != 0 {
			resp.Pages = []survey.QuestionGroup{{
				ID: "p1",
				Questions: []survey.Question{{
					ID:      "q-upload",
					Answers: []survey.Answer{FileAnswer(id+".pdf", "https://files.example.com/"+id)},
				}},
			}}
		}
		responses = append(responses, resp)
	}
	return responses
}

// FileAnswer returns a file upload answer.
func FileAnswer(name, downloadURL string) survey.Answer {
	return survey.Answer{Text: &name, DownloadURL: &downloadURL}
}
