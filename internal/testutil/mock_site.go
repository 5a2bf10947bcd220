// Package testutil provides httptest fakes of the resort site and the
// camera widget host.
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

// Paths served by the fake resort site.
const (
	ListPath   = "/api/internal/component/about:camera.list"
	ItemPath   = "/api/internal/component/about:camera.item/ajax"
	WidgetPath = "/widget/widget.json"
)

// MockCamera is one camera known to the fake sites.
type MockCamera struct {
	ID         string
	Name       string
	Token      string
	DetailJSON string
}

// MockSite runs two servers: the resort site (listing + item stubs) and the
// widget host (widget JSON). Pages beyond the configured ones are empty.
type MockSite struct {
	site   *httptest.Server
	widget *httptest.Server

	mu           sync.RWMutex
	pages        [][]MockCamera
	listStatus   map[int]int
	itemStatus   map[string]int
	widgetStatus map[string]int
	itemDelay    map[string]time.Duration
	requireCORS  bool

	// Tracking
	listRequests     []int
	itemRequests     int
	widgetRequests   int
	lastSiteHeader   http.Header
	lastWidgetHeader http.Header
}

// NewMockSite starts both fake servers.
func NewMockSite() *MockSite {
	m := &MockSite{
		listStatus:   make(map[int]int),
		itemStatus:   make(map[string]int),
		widgetStatus: make(map[string]int),
		itemDelay:    make(map[string]time.Duration),
		requireCORS:  true,
	}
	m.site = httptest.NewServer(http.HandlerFunc(m.serveSite))
	m.widget = httptest.NewServer(http.HandlerFunc(m.serveWidget))
	return m
}

// SiteURL returns the base URL of the fake resort site.
func (m *MockSite) SiteURL() string {
	return m.site.URL
}

// WidgetURL returns the base URL of the fake widget host.
func (m *MockSite) WidgetURL() string {
	return m.widget.URL
}

// Close shuts down both servers.
func (m *MockSite) Close() {
	m.site.Close()
	m.widget.Close()
}

// SetPages replaces the listing. pages[0] is page 1.
func (m *MockSite) SetPages(pages ...[]MockCamera) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = pages
}

// FailListing makes the listing for page answer with status.
func (m *MockSite) FailListing(page, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listStatus[page] = status
}

// FailItem makes the item stub for a camera id answer with status.
func (m *MockSite) FailItem(id string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemStatus[id] = status
}

// FailWidget makes the widget JSON for a token answer with status.
func (m *MockSite) FailWidget(token string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.widgetStatus[token] = status
}

// DelayItem delays the item stub for a camera id.
func (m *MockSite) DelayItem(id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemDelay[id] = d
}

// RequireCORS toggles the Origin check on the widget host (default on).
func (m *MockSite) RequireCORS(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requireCORS = on
}

// ListingRequests returns the page numbers requested, in arrival order.
func (m *MockSite) ListingRequests() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.listRequests...)
}

// ItemRequestCount returns the number of item stub requests.
func (m *MockSite) ItemRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemRequests
}

// WidgetRequestCount returns the number of widget JSON requests.
func (m *MockSite) WidgetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.widgetRequests
}

// LastSiteHeader returns the headers of the last resort site request.
func (m *MockSite) LastSiteHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSiteHeader
}

// LastWidgetHeader returns the headers of the last widget host request.
func (m *MockSite) LastWidgetHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastWidgetHeader
}

func (m *MockSite) serveSite(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.lastSiteHeader = r.Header.Clone()
	m.mu.Unlock()

	switch r.URL.Path {
	case ListPath:
		m.serveList(w, r)
	case ItemPath:
		m.serveItem(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockSite) serveList(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("p"))
	if err != nil {
		http.Error(w, "bad page", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.listRequests = append(m.listRequests, page)
	status, failing := m.listStatus[page]
	var cams []MockCamera
	if page >= 1 && page <= len(m.pages) {
		cams = m.pages[page-1]
	}
	m.mu.Unlock()

	if failing {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, ListingHTML(cams))
}

func (m *MockSite) serveItem(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("params[CAMERA_ID]")

	m.mu.Lock()
	m.itemRequests++
	status, failing := m.itemStatus[id]
	delay := m.itemDelay[id]
	cam, found := m.findLocked(func(c MockCamera) bool { return c.ID == id })
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failing {
		w.WriteHeader(status)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, ItemHTML(cam.Token))
}

func (m *MockSite) serveWidget(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != WidgetPath {
		http.NotFound(w, r)
		return
	}
	token := r.URL.RawQuery

	m.mu.Lock()
	m.widgetRequests++
	m.lastWidgetHeader = r.Header.Clone()
	status, failing := m.widgetStatus[token]
	requireCORS := m.requireCORS
	cam, found := m.findLocked(func(c MockCamera) bool { return c.Token == token })
	m.mu.Unlock()

	if requireCORS && (r.Header.Get("Origin") == "" || r.Header.Get("Sec-Fetch-Mode") != "cors") {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if failing {
		w.WriteHeader(status)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, cam.DetailJSON)
}

func (m *MockSite) findLocked(match func(MockCamera) bool) (MockCamera, bool) {
	for _, page := range m.pages {
		for _, c := range page {
			if match(c) {
				return c, true
			}
		}
	}
	return MockCamera{}, false
}

// ListingHTML renders a listing fragment the way the resort site does.
func ListingHTML(cams []MockCamera) string {
	var b strings.Builder
	b.WriteString(`<div class="webcams_list">` + "\n")
	for _, c := range cams {
		fmt.Fprintf(&b, `<div class="webcams_item" data-camera-id="%s">`+"\n", c.ID)
		fmt.Fprintf(&b, `  <h3 class="webcams_name">%s</h3>`+"\n", c.Name)
		b.WriteString("</div>\n")
	}
	b.WriteString("</div>\n")
	return b.String()
}

// ItemHTML renders a camera item stub embedding the widget script.
func ItemHTML(token string) string {
	return fmt.Sprintf(`<div class="webcam_player"><script async src="//sochi.camera/widget/widget.js?%s"></script></div>`, token)
}

// Cameras builds n cameras with predictable ids, names and tokens.
func Cameras(start, n int) []MockCamera {
	cams := make([]MockCamera, n)
	for i := range cams {
		k := start + i
		cams[i] = MockCamera{
			ID:         strconv.Itoa(100 + k),
			Name:       fmt.Sprintf("Camera %d", k),
			Token:      fmt.Sprintf("s%d", k),
			DetailJSON: fmt.Sprintf(`{"id":"s%d","title":"Camera %d"}`, k, k),
		}
	}
	return cams
}
