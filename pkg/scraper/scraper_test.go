package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/rosakhutor-webcams/internal/testutil"
	"github.com/Sternrassler/rosakhutor-webcams/pkg/transport"
)

const (
	testList = "https://rosakhutor.com/api/internal/component/about:camera.list?p=%d"
	testItem = "https://rosakhutor.com/api/internal/component/about:camera.item/ajax?params[CAMERA_ID]=%s"
	testJSON = "https://sochi.camera/widget/widget.json?%s"
)

type fakeCall struct {
	url     string
	profile string
}

// fakeFetcher answers from canned bodies keyed by URL.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []fakeCall
	hook      func(ctx context.Context, url string) error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]string),
		errs:      make(map[string]error),
	}
}

func (f *fakeFetcher) FetchText(ctx context.Context, url string, profile transport.Profile) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{url: url, profile: profile.Name()})
	body, ok := f.responses[url]
	err := f.errs[url]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if herr := hook(ctx, url); herr != nil {
			return "", herr
		}
	}
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("unexpected url %s", url)
	}
	return body, nil
}

func (f *fakeFetcher) Calls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

// addPage wires listing, item stubs and widget JSON for cams on page.
func (f *fakeFetcher) addPage(page int, cams []testutil.MockCamera) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[fmt.Sprintf(testList, page)] = testutil.ListingHTML(cams)
	for _, c := range cams {
		f.responses[fmt.Sprintf(testItem, c.ID)] = testutil.ItemHTML(c.Token)
		f.responses[fmt.Sprintf(testJSON, c.Token)] = c.DetailJSON
	}
}

func newTestScraper(t *testing.T, f Fetcher) *Scraper {
	t.Helper()
	s, err := New(f, DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_Validation(t *testing.T) {
	f := newFakeFetcher()

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"relative site url", func(c *Config) { c.SiteURL = "rosakhutor.com" }},
		{"empty widget url", func(c *Config) { c.WidgetURL = "" }},
		{"stream port zero", func(c *Config) { c.StreamPort = 0 }},
		{"stream port too big", func(c *Config) { c.StreamPort = 70000 }},
		{"missing user agent", func(c *Config) { c.UserAgent = "" }},
		{"start page zero", func(c *Config) { c.StartPage = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if _, err := New(f, cfg); err == nil {
				t.Error("Expected error but got nil")
			}
		})
	}

	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("New(nil fetcher) should fail")
	}
}

func TestNext_RosaPlateau(t *testing.T) {
	f := newFakeFetcher()
	f.addPage(1, []testutil.MockCamera{{ID: "111", Name: "Rosa Plateau", Token: "s68"}})
	s := newTestScraper(t, f)

	cams, err := s.Next(context.Background(), false)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(cams) != 1 {
		t.Fatalf("got %d cameras, want 1", len(cams))
	}
	if cams[0].Name != "Rosa Plateau" {
		t.Errorf("Name = %q", cams[0].Name)
	}
	if cams[0].StreamURL != "https://sochi.camera:8081/cam_s68/video.m3u8?token=bisv_dgZK" {
		t.Errorf("StreamURL = %q", cams[0].StreamURL)
	}
	if !strings.HasSuffix(cams[0].StreamURL, "/cam_s68/video.m3u8?token="+DefaultStreamToken) {
		t.Errorf("StreamURL suffix wrong: %q", cams[0].StreamURL)
	}
}

func TestNext_PreservesSourceOrderWithoutDetails(t *testing.T) {
	f := newFakeFetcher()
	cams := testutil.Cameras(1, 5)
	f.addPage(1, cams)
	s := newTestScraper(t, f)

	got, err := s.Next(context.Background(), false)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(got) != len(cams) {
		t.Fatalf("got %d cameras, want %d", len(got), len(cams))
	}
	for i, c := range got {
		if c.Name != cams[i].Name {
			t.Errorf("camera %d Name = %q, want %q", i, c.Name, cams[i].Name)
		}
		if c.StreamURL == "" || !strings.Contains(c.StreamURL, "/cam_"+cams[i].Token+"/") {
			t.Errorf("camera %d StreamURL = %q", i, c.StreamURL)
		}
		if c.DetailJSON != "" {
			t.Errorf("camera %d DetailJSON = %q, want empty", i, c.DetailJSON)
		}
	}

	for _, call := range f.Calls() {
		if strings.Contains(call.url, "widget.json") {
			t.Errorf("widget JSON fetched without details: %s", call.url)
		}
		if call.profile != ProfileDefault {
			t.Errorf("call %s used profile %q", call.url, call.profile)
		}
	}
}

func TestNext_DetailsArePassedThrough(t *testing.T) {
	f := newFakeFetcher()
	cams := []testutil.MockCamera{
		{ID: "111", Name: "Rosa Plateau", Token: "s68", DetailJSON: "{\"title\": \"Rosa Plateau\"}\n"},
		{ID: "222", Name: "Kardon", Token: "s99", DetailJSON: "not json at all"},
	}
	f.addPage(1, cams)
	s := newTestScraper(t, f)

	got, err := s.Next(context.Background(), true)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	for i, c := range got {
		if c.DetailJSON != cams[i].DetailJSON {
			t.Errorf("camera %d DetailJSON = %q, want %q", i, c.DetailJSON, cams[i].DetailJSON)
		}
	}

	for _, call := range f.Calls() {
		want := ProfileDefault
		if strings.Contains(call.url, "widget.json") {
			want = ProfileDetail
		}
		if call.profile != want {
			t.Errorf("call %s used profile %q, want %q", call.url, call.profile, want)
		}
	}
}

func TestNext_ExhaustionIsSticky(t *testing.T) {
	f := newFakeFetcher()
	f.addPage(1, testutil.Cameras(1, 2))
	f.addPage(2, nil)
	s := newTestScraper(t, f)
	ctx := context.Background()

	if cams, err := s.Next(ctx, false); err != nil || len(cams) != 2 {
		t.Fatalf("page 1: %d cameras, err %v", len(cams), err)
	}
	if s.Exhausted() {
		t.Fatal("exhausted after a non-empty page")
	}

	cams, err := s.Next(ctx, false)
	if err != nil || len(cams) != 0 {
		t.Fatalf("page 2: %d cameras, err %v", len(cams), err)
	}
	if !s.Exhausted() {
		t.Fatal("not exhausted after an empty page")
	}

	before := len(f.Calls())
	for i := 0; i < 3; i++ {
		cams, err := s.Next(ctx, true)
		if err != nil || len(cams) != 0 {
			t.Errorf("exhausted Next = %d cameras, err %v", len(cams), err)
		}
	}
	if after := len(f.Calls()); after != before {
		t.Errorf("exhausted Next made %d requests", after-before)
	}

	if err := s.Reset(1); err != nil {
		t.Fatalf("Reset(1) error = %v", err)
	}
	if s.Exhausted() || s.NextPage() != 1 {
		t.Errorf("after Reset: exhausted=%v next=%d", s.Exhausted(), s.NextPage())
	}
	if cams, err := s.Next(ctx, false); err != nil || len(cams) != 2 {
		t.Errorf("page 1 after reset: %d cameras, err %v", len(cams), err)
	}
}

func TestReset(t *testing.T) {
	f := newFakeFetcher()
	f.addPage(1, nil)
	s := newTestScraper(t, f)

	if _, err := s.Next(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if !s.Exhausted() {
		t.Fatal("expected exhausted")
	}

	for _, page := range []int{0, -1, -100} {
		err := s.Reset(page)
		if !errors.Is(err, ErrPageOutOfRange) {
			t.Errorf("Reset(%d) error = %v, want ErrPageOutOfRange", page, err)
		}
		if !s.Exhausted() || s.NextPage() != 2 {
			t.Errorf("Reset(%d) mutated cursor: exhausted=%v next=%d", page, s.Exhausted(), s.NextPage())
		}
	}

	if err := s.Reset(7); err != nil {
		t.Fatalf("Reset(7) error = %v", err)
	}
	if s.Exhausted() || s.NextPage() != 7 {
		t.Errorf("Reset(7): exhausted=%v next=%d", s.Exhausted(), s.NextPage())
	}
}

func TestNext_CountMismatchFails(t *testing.T) {
	f := newFakeFetcher()
	f.responses[fmt.Sprintf(testList, 1)] = `
<div data-camera-id="1"><h3 class="webcams_name">A</h3></div>
<div data-camera-id="2"><h3 class="webcams_name">B</h3></div>
<div><h3 class="webcams_name">C</h3></div>`
	s := newTestScraper(t, f)

	cams, err := s.Next(context.Background(), false)
	if !errors.Is(err, ErrCountMismatch) {
		t.Fatalf("Next() error = %v, want ErrCountMismatch", err)
	}
	if cams != nil {
		t.Errorf("got %d cameras on mismatch", len(cams))
	}
	if calls := f.Calls(); len(calls) != 1 {
		t.Errorf("made %d requests, want only the listing", len(calls))
	}
}

// A failed advance still consumes its page number. Retrying with Next moves
// on to the following page; callers wanting the failed page must Reset.
func TestNext_FailedAdvanceConsumesPage(t *testing.T) {
	f := newFakeFetcher()
	f.errs[fmt.Sprintf(testList, 1)] = errors.New("connection reset")
	f.addPage(2, testutil.Cameras(10, 1))
	s := newTestScraper(t, f)
	ctx := context.Background()

	if _, err := s.Next(ctx, false); err == nil {
		t.Fatal("expected listing error")
	}
	if s.NextPage() != 2 {
		t.Errorf("NextPage after failure = %d, want 2", s.NextPage())
	}
	if s.Exhausted() {
		t.Error("failure must not exhaust the cursor")
	}

	cams, err := s.Next(ctx, false)
	if err != nil || len(cams) != 1 || cams[0].Name != "Camera 10" {
		t.Errorf("retry returned %v, err %v; want page 2", cams, err)
	}
}

func TestNext_WidgetWaveFailureFailsAdvance(t *testing.T) {
	f := newFakeFetcher()
	cams := testutil.Cameras(1, 4)
	f.addPage(1, cams)
	boom := &transport.FetchError{URL: "x", StatusCode: 500, ErrorClass: transport.ErrorClassServer}
	f.errs[fmt.Sprintf(testItem, cams[2].ID)] = boom
	s := newTestScraper(t, f)

	got, err := s.Next(context.Background(), true)
	if err == nil {
		t.Fatal("expected wave error")
	}
	var fe *transport.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != 500 {
		t.Errorf("error = %v, want wrapped FetchError 500", err)
	}
	if got != nil {
		t.Errorf("partial results returned: %v", got)
	}
	for _, call := range f.Calls() {
		if strings.Contains(call.url, "widget.json") {
			t.Errorf("detail wave ran after widget wave failed: %s", call.url)
		}
	}
}

func TestNext_DetailWaveFailureFailsAdvance(t *testing.T) {
	f := newFakeFetcher()
	cams := testutil.Cameras(1, 3)
	f.addPage(1, cams)
	f.errs[fmt.Sprintf(testJSON, cams[0].Token)] = errors.New("403 forbidden")
	s := newTestScraper(t, f)

	got, err := s.Next(context.Background(), true)
	if err == nil {
		t.Fatal("expected detail wave error")
	}
	if got != nil {
		t.Errorf("partial results returned: %v", got)
	}

	// Without details the same page succeeds.
	if err := s.Reset(1); err != nil {
		t.Fatal(err)
	}
	if got, err := s.Next(context.Background(), false); err != nil || len(got) != 3 {
		t.Errorf("without details: %d cameras, err %v", len(got), err)
	}
}

func TestNext_MissingWidgetTokenIsTolerated(t *testing.T) {
	f := newFakeFetcher()
	f.responses[fmt.Sprintf(testList, 1)] = testutil.ListingHTML([]testutil.MockCamera{{ID: "5", Name: "Offline"}})
	f.responses[fmt.Sprintf(testItem, "5")] = `<div>camera offline</div>`
	s := newTestScraper(t, f)

	cams, err := s.Next(context.Background(), false)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(cams) != 1 || !strings.Contains(cams[0].StreamURL, "/cam_/") {
		t.Errorf("got %v", cams)
	}
}

func TestFetchWave_FansOutAndKeepsOrder(t *testing.T) {
	urls := []string{"https://x.test/A", "https://x.test/B", "https://x.test/C"}

	f := newFakeFetcher()
	for _, u := range urls {
		f.responses[u] = u[len(u)-1:]
	}

	var started sync.WaitGroup
	started.Add(len(urls))
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	delays := map[string]time.Duration{
		urls[0]: 60 * time.Millisecond,
		urls[1]: 30 * time.Millisecond,
		urls[2]: 0,
	}
	f.hook = func(ctx context.Context, url string) error {
		started.Done()
		select {
		case <-allStarted:
		case <-time.After(2 * time.Second):
			return errors.New("requests were not issued concurrently")
		}
		time.Sleep(delays[url])
		return nil
	}

	s := newTestScraper(t, f)
	got, err := fetchWave(context.Background(), f, s.logger, waveWidget, urls, s.defaultProfile)
	if err != nil {
		t.Fatalf("fetchWave() error = %v", err)
	}
	want := []string{"A", "B", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFetchWave_FirstFailureCancelsOthers(t *testing.T) {
	urls := []string{"https://x.test/slow", "https://x.test/fail"}
	f := newFakeFetcher()
	f.responses[urls[0]] = "slow"
	f.errs[urls[1]] = errors.New("boom")

	cancelled := make(chan struct{})
	f.hook = func(ctx context.Context, url string) error {
		if url != urls[0] {
			return nil
		}
		select {
		case <-ctx.Done():
			close(cancelled)
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return nil
		}
	}

	s := newTestScraper(t, f)
	if _, err := fetchWave(context.Background(), f, s.logger, waveDetail, urls, s.detailProfile); err == nil {
		t.Fatal("expected error")
	}
	select {
	case <-cancelled:
	default:
		t.Error("slow request was not cancelled")
	}
}

func TestPages(t *testing.T) {
	f := newFakeFetcher()
	f.addPage(1, testutil.Cameras(1, 3))
	f.addPage(2, testutil.Cameras(4, 2))
	f.addPage(3, nil)
	s := newTestScraper(t, f)

	var sizes []int
	for cams, err := range s.Pages(context.Background(), true) {
		if err != nil {
			t.Fatalf("Pages() error = %v", err)
		}
		sizes = append(sizes, len(cams))
	}
	if fmt.Sprint(sizes) != "[3 2]" {
		t.Errorf("page sizes = %v, want [3 2]", sizes)
	}
	if !s.Exhausted() {
		t.Error("Pages did not run the cursor to exhaustion")
	}
}

func TestPages_StopsOnBreakAndError(t *testing.T) {
	f := newFakeFetcher()
	f.addPage(1, testutil.Cameras(1, 1))
	f.addPage(2, testutil.Cameras(2, 1))
	s := newTestScraper(t, f)

	for range s.Pages(context.Background(), false) {
		break
	}
	if s.NextPage() != 2 {
		t.Errorf("NextPage after break = %d, want 2", s.NextPage())
	}

	// Page 3 is unknown to the fake, so the second iteration fails.
	var errs int
	for _, err := range s.Pages(context.Background(), false) {
		if err != nil {
			errs++
		}
	}
	if errs != 1 {
		t.Errorf("errors yielded = %d, want 1", errs)
	}
}

func TestNext_ConcurrentCallersGetDistinctPages(t *testing.T) {
	f := newFakeFetcher()
	f.addPage(1, testutil.Cameras(1, 1))
	f.addPage(2, testutil.Cameras(2, 1))
	s := newTestScraper(t, f)

	var wg sync.WaitGroup
	names := make([]string, 2)
	for i := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cams, err := s.Next(context.Background(), false)
			if err != nil || len(cams) != 1 {
				t.Errorf("Next() = %v, %v", cams, err)
				return
			}
			names[i] = cams[0].Name
		}()
	}
	wg.Wait()

	if names[0] == names[1] {
		t.Errorf("both callers got %q", names[0])
	}
}

func TestDetailProfile(t *testing.T) {
	p := DetailProfile(DefaultConfig())

	want := map[string]string{
		"Accept":         "*/*",
		"Connection":     "keep-alive",
		"Host":           "sochi.camera",
		"Origin":         "https://rosakhutor.com",
		"Referer":        "https://sochi.camera",
		"Sec-Fetch-Dest": "empty",
		"Sec-Fetch-Mode": "cors",
		"Sec-Fetch-Site": "cross-site",
		"User-Agent":     DefaultDetailUserAgent,
	}
	got := p.Headers()
	if len(got) != len(want) {
		t.Errorf("detail profile has %d headers, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}

	def := DefaultProfile(DefaultConfig()).Headers()
	if len(def) != 1 || def["User-Agent"] != DefaultUserAgent {
		t.Errorf("default profile = %v", def)
	}
}

func TestCursor(t *testing.T) {
	if _, err := NewCursor(0); !errors.Is(err, ErrPageOutOfRange) {
		t.Errorf("NewCursor(0) error = %v", err)
	}

	c, err := NewCursor(3)
	if err != nil {
		t.Fatal(err)
	}
	if p := c.take(); p != 3 || c.NextPage() != 4 {
		t.Errorf("take = %d, next = %d", p, c.NextPage())
	}
	c.exhaust()
	if !c.Exhausted() {
		t.Error("exhaust did not set the flag")
	}
	if err := c.Reset(1); err != nil || c.Exhausted() || c.NextPage() != 1 {
		t.Errorf("Reset(1): err=%v exhausted=%v next=%d", err, c.Exhausted(), c.NextPage())
	}
}

func TestScraper_AgainstMockSite(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetPages(testutil.Cameras(1, 7), testutil.Cameras(8, 3))

	client, err := transport.New(transport.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	if err := client.SetConnectionLimit(site.SiteURL(), 2); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.SiteURL = site.SiteURL()
	cfg.WidgetURL = site.WidgetURL()
	s, err := New(client, cfg)
	if err != nil {
		t.Fatal(err)
	}

	var all []Camera
	for cams, err := range s.Pages(context.Background(), true) {
		if err != nil {
			t.Fatalf("Pages() error = %v", err)
		}
		all = append(all, cams...)
	}

	if len(all) != 10 {
		t.Fatalf("got %d cameras, want 10", len(all))
	}
	for i, c := range all {
		k := i + 1
		if c.Name != fmt.Sprintf("Camera %d", k) {
			t.Errorf("camera %d Name = %q", i, c.Name)
		}
		if c.DetailJSON != fmt.Sprintf(`{"id":"s%d","title":"Camera %d"}`, k, k) {
			t.Errorf("camera %d DetailJSON = %q", i, c.DetailJSON)
		}
		if !strings.HasSuffix(c.StreamURL, fmt.Sprintf(":8081/cam_s%d/video.m3u8?token=bisv_dgZK", k)) {
			t.Errorf("camera %d StreamURL = %q", i, c.StreamURL)
		}
	}

	if got := fmt.Sprint(site.ListingRequests()); got != "[1 2 3]" {
		t.Errorf("listing requests = %s, want [1 2 3]", got)
	}
	if site.ItemRequestCount() != 10 || site.WidgetRequestCount() != 10 {
		t.Errorf("item requests = %d, widget requests = %d", site.ItemRequestCount(), site.WidgetRequestCount())
	}
	if site.LastSiteHeader().Get("Origin") != "" {
		t.Error("site request carried the detail Origin header")
	}
	if site.LastWidgetHeader().Get("Referer") != cfg.WidgetURL {
		t.Errorf("widget Referer = %q", site.LastWidgetHeader().Get("Referer"))
	}
}

func TestScraper_AgainstMockSite_ItemFailure(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	cams := testutil.Cameras(1, 3)
	site.SetPages(cams)
	site.FailItem(cams[1].ID, 502)

	client, err := transport.New(transport.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	cfg := DefaultConfig()
	cfg.SiteURL = site.SiteURL()
	cfg.WidgetURL = site.WidgetURL()
	s, err := New(client, cfg)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Next(context.Background(), false)
	var fe *transport.FetchError
	if !errors.As(err, &fe) || fe.ErrorClass != transport.ErrorClassServer {
		t.Errorf("error = %v, want server FetchError", err)
	}
	if s.NextPage() != 2 {
		t.Errorf("NextPage = %d, want 2", s.NextPage())
	}
}
