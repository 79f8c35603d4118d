package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"duyurubot/internal/storage"
	"duyurubot/pkg/logx"
)

func testFetcher() *Fetcher {
	return New(Config{
		RequestTimeout: 2 * time.Second,
		MinDelay:       time.Millisecond,
		MaxDelay:       2 * time.Millisecond,
	}, logx.Nop())
}

func rowHTML(href, title, date string) string {
	return fmt.Sprintf(`<tr><td><a href="%s">%s</a></td><td>%s</td></tr>`, href, title, date)
}

func pageHTML(rows ...string) string {
	return "<table>" + strings.Join(rows, "") + "</table>"
}

func TestFetchAllPaginates(t *testing.T) {
	t.Parallel()

	// Two full pages of 3 rows, then an empty page: the walk must issue
	// exactly 3 requests at offsets 0, 3, 6 and return all 6 rows.
	var offsets []string
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		offset := r.PostFormValue("firstItem")
		offsets = append(offsets, offset)

		switch offset {
		case "0", "3":
			var rows []string
			for i := 0; i < 3; i++ {
				rows = append(rows, rowHTML(
					fmt.Sprintf("/duyuru?id=%s-%d", offset, i),
					fmt.Sprintf("Duyuru %s-%d", offset, i),
					"02.05.2026"))
			}
			fmt.Fprint(w, pageHTML(rows...))
		default:
			fmt.Fprint(w, pageHTML())
		}
	}))
	defer srv.Close()

	src := storage.Source{ID: 7, Name: "Kimya", ShortName: "kimya", URL: srv.URL + "/kimya"}
	rows, err := testFetcher().FetchAll(context.Background(), src)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	if requests != 3 {
		t.Fatalf("requests = %d, want 3", requests)
	}
	if want := []string{"0", "3", "6"}; fmt.Sprint(offsets) != fmt.Sprint(want) {
		t.Fatalf("offsets = %v, want %v", offsets, want)
	}
	if len(rows) != 6 {
		t.Fatalf("rows = %d, want 6", len(rows))
	}

	u, _ := url.Parse(srv.URL)
	wantLink := u.Scheme + "://" + u.Host + "/kimya/duyuru?id=0-0"
	if rows[0].Link != wantLink {
		t.Fatalf("link = %q, want %q", rows[0].Link, wantLink)
	}
}

func TestFetchAllRequestShape(t *testing.T) {
	t.Parallel()

	var gotHeaders http.Header
	var gotForm url.Values
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseForm()
		gotForm = r.PostForm
		gotHeaders = r.Header
		fmt.Fprint(w, pageHTML())
	}))
	defer srv.Close()

	src := storage.Source{ID: 42, Name: "Fizik", ShortName: "fizik", URL: srv.URL + "/fizik"}
	if _, err := testFetcher().FetchAll(context.Background(), src); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	if gotPath != "/home/_TestData" {
		t.Fatalf("path = %q, want /home/_TestData", gotPath)
	}
	wantForm := map[string]string{
		"sortOrder":    "ascending",
		"searchString": "",
		"insId":        "42",
		"type":         "duyuru",
		"firstItem":    "0",
	}
	for k, want := range wantForm {
		if got := gotForm.Get(k); got != want {
			t.Fatalf("form %s = %q, want %q", k, got, want)
		}
	}
	if got := gotHeaders.Get("X-Requested-With"); got != "XMLHttpRequest" {
		t.Fatalf("X-Requested-With = %q", got)
	}
	if got := gotHeaders.Get("Referer"); got != src.URL {
		t.Fatalf("Referer = %q, want %q", got, src.URL)
	}
	if gotHeaders.Get("User-Agent") == "" {
		t.Fatal("User-Agent missing")
	}
}

func TestFetchAllRotatesUserAgent(t *testing.T) {
	t.Parallel()

	agents := map[string]bool{}
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		agents[r.Header.Get("User-Agent")] = true
		_ = r.ParseForm()
		if requests <= 3 {
			fmt.Fprint(w, pageHTML(rowHTML("/d", "t", "02.05.2026")))
			return
		}
		fmt.Fprint(w, pageHTML())
	}))
	defer srv.Close()

	f := New(Config{
		MinDelay:   time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		UserAgents: []string{"agent-a", "agent-b"},
	}, logx.Nop())
	src := storage.Source{ID: 1, ShortName: "kimya", URL: srv.URL + "/kimya"}
	if _, err := f.FetchAll(context.Background(), src); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	if !agents["agent-a"] || !agents["agent-b"] {
		t.Fatalf("expected both identities used, got %v", agents)
	}
}

func TestFetchAllStatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := storage.Source{ID: 1, ShortName: "kimya", URL: srv.URL + "/kimya"}
	if _, err := testFetcher().FetchAll(context.Background(), src); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestFetchAllCancellation(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pageHTML(rowHTML("/d", "t", "02.05.2026")))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := storage.Source{ID: 1, ShortName: "kimya", URL: srv.URL + "/kimya"}
	if _, err := testFetcher().FetchAll(ctx, src); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestParseRowsDropsInvalid(t *testing.T) {
	t.Parallel()

	page := pageHTML(
		`<tr><th>Başlık</th><th>Tarih</th></tr>`, // header: no cells
		rowHTML("/duyuru?id=1", "Ge&ccedil;erli &amp; duyuru", "02.05.2026"),
		`<tr><td>no anchor</td><td>03.05.2026</td></tr>`,
		`<tr><td><a href="/duyuru?id=2">tek hücre</a></td></tr>`,
	)

	rows, total, err := parseRows(strings.NewReader(page), "https://example.edu/kimya/", logx.Nop())
	if err != nil {
		t.Fatalf("parseRows: %v", err)
	}
	if total != 4 {
		t.Fatalf("total = %d, want 4", total)
	}
	if len(rows) != 1 {
		t.Fatalf("valid rows = %d, want 1", len(rows))
	}
	if rows[0].Title != "Geçerli & duyuru" {
		t.Fatalf("title = %q, want entities decoded", rows[0].Title)
	}
	if rows[0].Link != "https://example.edu/kimya/duyuru?id=1" {
		t.Fatalf("link = %q", rows[0].Link)
	}
	want := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	if !rows[0].PublishedAt.Equal(want) {
		t.Fatalf("date = %v, want %v", rows[0].PublishedAt, want)
	}
}

func TestParseRowsDateFallback(t *testing.T) {
	t.Parallel()

	page := pageHTML(rowHTML("/duyuru?id=9", "Tarihsiz", "yarın"))
	before := time.Now()
	rows, total, err := parseRows(strings.NewReader(page), "https://example.edu/kimya/", logx.Nop())
	if err != nil {
		t.Fatalf("parseRows: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("rows = %d/%d, want 1/1", len(rows), total)
	}
	// Unparseable date keeps the row and substitutes "now".
	if rows[0].PublishedAt.Before(before) {
		t.Fatalf("fallback date %v predates test start %v", rows[0].PublishedAt, before)
	}
}
