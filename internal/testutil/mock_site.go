// Package testutil provides testing utilities for the results harvester.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockPageResponse defines the behavior for one mocked results page.
type MockPageResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSite is a configurable results site serving /<event>/results/<index>/.
type MockSite struct {
	server *httptest.Server
	mu     sync.RWMutex
	event  string

	// pages maps a page index to a queue of responses; the last response of
	// a queue repeats once the queue is drained.
	pages map[int][]MockPageResponse

	// Tracking
	RequestCount      int
	PageRequests      map[int]int
	LastRequestHeader http.Header
}

// NewMockSite creates a mock results site for event. Unconfigured pages
// answer 404.
func NewMockSite(event string) *MockSite {
	mock := &MockSite{
		event:        event,
		pages:        make(map[int][]MockPageResponse),
		PageRequests: make(map[int]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server base URL.
func (m *MockSite) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSite) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockSite) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PageRequests = make(map[int]int)
	m.LastRequestHeader = nil
}

// SetPage configures the responses for a page index, served in order.
func (m *MockSite) SetPage(index int, responses ...MockPageResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[index] = responses
}

// SetResultsPage serves a 200 results page for index.
func (m *MockSite) SetResultsPage(index int, body string) {
	m.SetPage(index, NewPageResponse(body))
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSite) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPageRequests returns the number of requests made for one index.
func (m *MockSite) GetPageRequests(index int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PageRequests[index]
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockSite) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

func (m *MockSite) handle(w http.ResponseWriter, r *http.Request) {
	index, ok := m.parseIndex(r)

	m.mu.Lock()
	m.RequestCount++
	m.LastRequestHeader = r.Header.Clone()
	var resp *MockPageResponse
	if ok {
		m.PageRequests[index]++
		if queue := m.pages[index]; len(queue) > 0 {
			next := queue[0]
			if len(queue) > 1 {
				m.pages[index] = queue[1:]
			}
			resp = &next
		}
	}
	m.mu.Unlock()

	if resp == nil {
		http.NotFound(w, r)
		return
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// parseIndex accepts both /<event>/results/<n>/ and
// /<event>/results/weeklyresults/?runSeqNumber=<n>.
func (m *MockSite) parseIndex(r *http.Request) (int, bool) {
	prefix := fmt.Sprintf("/%s/results/", m.event)
	if !strings.HasPrefix(r.URL.Path, prefix) {
		return 0, false
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if rest == "weeklyresults" {
		rest = r.URL.Query().Get("runSeqNumber")
	}
	index, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return index, true
}

// NewPageResponse creates a standard 200 OK HTML response.
func NewPageResponse(body string) MockPageResponse {
	return MockPageResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "text/html; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 response.
func NewNotFoundResponse() MockPageResponse {
	return MockPageResponse{StatusCode: http.StatusNotFound, Body: "Not Found"}
}

// NewTooEarlyResponse creates the site's 425 Too Early pacing response.
func NewTooEarlyResponse() MockPageResponse {
	return MockPageResponse{StatusCode: http.StatusTooEarly, Body: "Too Early"}
}

// NewServerErrorResponse creates a 500 response, retried by the session.
func NewServerErrorResponse() MockPageResponse {
	return MockPageResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
}

// NewServiceUnavailableResponse creates a 503 response, retried by the session.
func NewServiceUnavailableResponse() MockPageResponse {
	return MockPageResponse{StatusCode: http.StatusServiceUnavailable, Body: "Service Unavailable"}
}

// NewForbiddenResponse creates a 403 response, a transient error that is not
// retried by the session.
func NewForbiddenResponse() MockPageResponse {
	return MockPageResponse{StatusCode: http.StatusForbidden, Body: "Forbidden"}
}
