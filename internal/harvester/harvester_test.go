package harvester

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"quill/internal/config"
)

func chapterPage(title, body, nextHref string) string {
	var sb strings.Builder
	sb.WriteString("<html><head><title>Site | " + title + "</title></head><body>")
	sb.WriteString("<h1>" + title + "</h1>")
	for _, paragraph := range strings.Split(body, "|") {
		sb.WriteString("<p>" + paragraph + "</p>")
	}
	if nextHref != "" {
		sb.WriteString(`<a href="` + nextHref + `">Next Chapter</a>`)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func newChainServer(t *testing.T, chapters int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for i := 1; i <= chapters; i++ {
		i := i
		mux.HandleFunc(fmt.Sprintf("/chapter-%d", i), func(w http.ResponseWriter, r *http.Request) {
			next := ""
			if i < chapters {
				next = fmt.Sprintf("/chapter-%d", i+1)
			}
			page := chapterPage(
				fmt.Sprintf("Chapter %d", i),
				fmt.Sprintf("Opening of chapter %d.|More of chapter %d.", i, i),
				next,
			)
			_, _ = w.Write([]byte(page))
		})
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestHarvester(maxItems int) *Harvester {
	return New(config.Harvester{MaxItems: maxItems, UserAgent: "test-agent"}, nil)
}

func TestHarvestFollowsNextLinks(t *testing.T) {
	server := newChainServer(t, 3)
	h := newTestHarvester(10)

	items, err := h.Harvest(context.Background(), server.URL+"/chapter-1")
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("harvested %d items, want 3", len(items))
	}
	for i, item := range items {
		if item.SequenceNumber != i+1 {
			t.Fatalf("item %d sequence = %d", i, item.SequenceNumber)
		}
		wantTitle := fmt.Sprintf("Chapter %d", i+1)
		if item.Title != wantTitle {
			t.Fatalf("item %d title = %q, want %q", i, item.Title, wantTitle)
		}
		if !strings.Contains(item.Body, fmt.Sprintf("Opening of chapter %d.", i+1)) {
			t.Fatalf("item %d body = %q", i, item.Body)
		}
	}
	if items[2].NextLocator != "" {
		t.Fatalf("last item next locator = %q, want empty", items[2].NextLocator)
	}
}

func TestHarvestStopsAtItemCeiling(t *testing.T) {
	server := newChainServer(t, 5)
	h := newTestHarvester(2)

	items, err := h.Harvest(context.Background(), server.URL+"/chapter-1")
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("harvested %d items, want 2", len(items))
	}
}

func TestHarvestBreaksNextLinkCycles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chapterPage("A", "Body of a page that loops.", "/b")))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chapterPage("B", "Second page pointing back.", "/a")))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	h := newTestHarvester(10)
	items, err := h.Harvest(context.Background(), server.URL+"/a")
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("harvested %d items, want 2", len(items))
	}
}

func TestHarvestReturnsPartialItemsOnFetchError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/one", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chapterPage("One", "First chapter content.", "/broken")))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	h := newTestHarvester(10)
	items, err := h.Harvest(context.Background(), server.URL+"/one")
	if err == nil {
		t.Fatal("expected error from broken page")
	}
	if len(items) != 1 {
		t.Fatalf("harvested %d items before failure, want 1", len(items))
	}
}

func TestHarvestRejectsEmptyLocator(t *testing.T) {
	h := newTestHarvester(10)
	if _, err := h.Harvest(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty locator")
	}
}

func TestHarvestSendsUserAgent(t *testing.T) {
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(chapterPage("Solo", "Only chapter there is.", "")))
	}))
	t.Cleanup(server.Close)

	h := newTestHarvester(1)
	if _, err := h.Harvest(context.Background(), server.URL); err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if gotAgent != "test-agent" {
		t.Fatalf("user agent = %q", gotAgent)
	}
}

func TestExtractTitlePrefersHeading(t *testing.T) {
	page := `<html><head><title>Doc Title</title></head><body><h1>Real <em>Heading</em></h1></body></html>`
	if got := ExtractTitle(page); got != "Real Heading" {
		t.Fatalf("title = %q", got)
	}
}

func TestExtractTitleFallsBackToTitleTag(t *testing.T) {
	page := `<html><head><title>  Doc &amp; Title </title></head><body><p>x</p></body></html>`
	if got := ExtractTitle(page); got != "Doc & Title" {
		t.Fatalf("title = %q", got)
	}
}

func TestExtractBodySkipsScriptsAndStyles(t *testing.T) {
	page := `<body><script>var p = "<p>fake</p>";</script><style>p{color:red}</style><p>real text</p></body>`
	if got := ExtractBody(page); got != "real text" {
		t.Fatalf("body = %q", got)
	}
}

func TestExtractNextLinkPrefersRelNext(t *testing.T) {
	page := `<a href="/wrong">Next</a><link rel="next" href="/right">`
	if got := ExtractNextLink(page); got != "/right" {
		t.Fatalf("next link = %q", got)
	}
}

func TestResolveLocatorDropsNonHTTPSchemes(t *testing.T) {
	if got := resolveLocator("https://example.com/a", "javascript:alert(1)"); got != "" {
		t.Fatalf("resolved = %q, want empty", got)
	}
	if got := resolveLocator("https://example.com/a/b", "../c"); got != "https://example.com/c" {
		t.Fatalf("resolved = %q", got)
	}
}

func TestDeriveTitleFromLocator(t *testing.T) {
	cases := []struct {
		locator string
		want    string
	}{
		{"https://example.com/books/the_gates_of_morning.html", "The Gates Of Morning"},
		{"https://example.com/chapter-12", "Chapter 12"},
		{"https://example.com/", "Example Com"},
		{"", "Untitled"},
	}
	for _, tc := range cases {
		if got := deriveTitleFromLocator(tc.locator); got != tc.want {
			t.Fatalf("deriveTitleFromLocator(%q) = %q, want %q", tc.locator, got, tc.want)
		}
	}
}
