package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/nidus-scraper/internal/clock/system"
	collyfetcher "github.com/JakeFAU/nidus-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/nidus-scraper/internal/manifest"
	"github.com/JakeFAU/nidus-scraper/internal/retry"
	"github.com/JakeFAU/nidus-scraper/internal/storage/local"
)

type harness struct {
	env      Env
	dataDir  string
	manifest string
	recorder *manifest.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dataDir := filepath.Join(t.TempDir(), "data_raw")
	store, err := local.New(local.Config{BaseDir: dataDir})
	require.NoError(t, err)
	logPath := filepath.Join(dataDir, "sources.csv")
	rec, err := manifest.Open(logPath, manifest.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })
	return &harness{
		env: Env{
			DataDir:  dataDir,
			Fetcher:  collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}),
			Store:    store,
			Recorder: rec,
			Retry:    retry.Policy{Attempts: 3},
		},
		dataDir:  dataDir,
		manifest: logPath,
		recorder: rec,
	}
}

func (h *harness) rows(t *testing.T) []string {
	t.Helper()
	// #nosec G304 -- test reads from its temp directory.
	data, err := os.ReadFile(h.manifest)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Equal(t, manifest.Header, lines[0])
	return lines[1:]
}

func TestGitHubRunStoresSearchResults(t *testing.T) {
	t.Parallel()

	const body = `<robot name="arm"/>`
	var (
		mu       sync.Mutex
		pages    []string
		sawToken bool
		sawIMS   bool
	)
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/search/code", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pages = append(pages, r.URL.Query().Get("page"))
		sawToken = r.Header.Get("Authorization") == "token secret"
		mu.Unlock()
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		assert.Equal(t, "extension:urdf stars:>5", r.URL.Query().Get("q"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprintf(w, `{"items":[{"html_url":"%s/acme/bots/blob/main/desc/arm.urdf","path":"desc/arm.urdf"}]}`, srvURL)
			return
		}
		fmt.Fprint(w, `{"items":[]}`)
	})
	mux.HandleFunc("/acme/bots/main/desc/arm.urdf", func(w http.ResponseWriter, r *http.Request) {
		_, err := http.ParseTime(r.Header.Get("If-Modified-Since"))
		mu.Lock()
		sawIMS = err == nil
		mu.Unlock()
		fmt.Fprint(w, body)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	h := newHarness(t)
	gh := NewGitHub(h.env, GitHubConfig{
		SearchURL:  srv.URL + "/search/code",
		Token:      "secret",
		Extensions: []string{"urdf"},
	})
	summary, err := gh.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, []string{"1", "2"}, pages)
	assert.True(t, sawToken)
	assert.True(t, sawIMS)

	dest := filepath.Join(h.dataDir, "github", "arm.urdf")
	// #nosec G304 -- test reads from its temp directory.
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))

	rows := h.rows(t)
	require.Len(t, rows, 1)
	fields := strings.Split(rows[0], ",")
	require.Len(t, fields, 4)
	assert.Equal(t, dest, fields[0])
	assert.Equal(t, srv.URL+"/acme/bots/main/desc/arm.urdf", fields[2])
}

func TestGitHubNotModifiedStoresNothing(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/search/code", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprintf(w, `{"items":[{"html_url":"%s/o/r/blob/main/a.sdf","path":"a.sdf"}]}`, srvURL)
			return
		}
		fmt.Fprint(w, `{"items":[]}`)
	})
	mux.HandleFunc("/o/r/main/a.sdf", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	h := newHarness(t)
	summary, err := NewGitHub(h.env, GitHubConfig{SearchURL: srv.URL + "/search/code", Extensions: []string{"sdf"}}).
		Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	_, statErr := os.Stat(filepath.Join(h.dataDir, "github", "a.sdf"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, h.rows(t))
}

func TestGitHubFailsFast(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	h := newHarness(t)
	_, err := NewGitHub(h.env, GitHubConfig{SearchURL: srv.URL, Extensions: []string{"urdf"}}).Run(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
}

func TestStandardsNotFoundCompletes(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/schema/jaus.xsd", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<xs:schema/>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHarness(t)
	std := NewStandards(h.env, StandardsConfig{URLs: []string{
		srv.URL + "/schema/jaus.xsd",
		srv.URL + "/missing/stanag.pdf",
	}})
	summary, err := std.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Submitted)
	assert.Equal(t, 1, summary.Failed)

	_, statErr := os.Stat(filepath.Join(h.dataDir, "standards", "stanag.pdf"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(h.dataDir, "standards", "jaus.xsd"))
	assert.NoError(t, statErr)
	assert.Len(t, h.rows(t), 1)
}

func TestVendorsDownloadsLinkedPDFs(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/support/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
<a href="manual.PDF">Manual</a>
<a href="docs\guide.pdf">Guide</a>
<a href="/about">About</a>
<a href="/broken.pdf">Broken</a>
</body></html>`)
	})
	mux.HandleFunc("/support/manual.PDF", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "%PDF manual") })
	mux.HandleFunc("/support/docs/guide.pdf", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "%PDF guide") })
	mux.HandleFunc("/broken.pdf", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) })
	mux.HandleFunc("/gone/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHarness(t)
	v := NewVendors(h.env, VendorsConfig{Pages: []string{srv.URL + "/gone/", srv.URL + "/support/"}})
	summary, err := v.Run(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Submitted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	for name, want := range map[string]string{"manual.PDF": "%PDF manual", "guide.pdf": "%PDF guide"} {
		// #nosec G304 -- test reads from its temp directory.
		got, err := os.ReadFile(filepath.Join(h.dataDir, "vendors", name))
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	assert.Len(t, h.rows(t), 2)
}

func TestExtractPDFLinks(t *testing.T) {
	t.Parallel()

	got := ExtractPDFLinks(`<a href="a.pdf">a</a><a href="b.html">b</a><a href="https://cdn.x.org/C.Pdf">c</a>`,
		"https://vendor.com/docs/")
	assert.Equal(t, []string{"https://vendor.com/docs/a.pdf", "https://cdn.x.org/C.Pdf"}, got)
}

type fakeRenderer struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeRenderer) Render(_ context.Context, u string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, u)
	return []byte("%PDF " + u), nil
}

func TestPagesDiscoversAndRenders(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<a href="/products/arm">Arm</a><a href="/blog/products">Blog</a><a href="/contact">Contact</a>`)
	})
	mux.HandleFunc("/products/arm", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<p>Arm specs</p>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHarness(t)
	domainsFile := filepath.Join(t.TempDir(), "vendor_domains.json")
	require.NoError(t, os.WriteFile(domainsFile, []byte(fmt.Sprintf(`{"127.0.0.1": [%q]}`, srv.URL+"/")), 0o600))

	renderer := &fakeRenderer{}
	env := h.env
	env.Renderer = renderer
	env.Clock = system.New()
	pages := NewPages(env, PagesConfig{DomainsFile: domainsFile, MaxDepth: 1})
	summary, err := pages.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, []string{srv.URL + "/products/arm"}, renderer.urls)

	dest := filepath.Join(h.dataDir, "html_product_pages", "127.0.0.1", "products_arm.pdf")
	// #nosec G304 -- test reads from its temp directory.
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "%PDF "+srv.URL+"/products/arm", string(got))
}

func TestPagesZeroDepthFetchesSeedsOnly(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var hits []string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		fmt.Fprint(w, `<a href="/products/arm">Arm</a><a href="/products/leg">Leg</a>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHarness(t)
	domainsFile := filepath.Join(t.TempDir(), "vendor_domains.json")
	require.NoError(t, os.WriteFile(domainsFile, []byte(fmt.Sprintf(`{"127.0.0.1": [%q]}`, srv.URL+"/products")), 0o600))

	renderer := &fakeRenderer{}
	env := h.env
	env.Renderer = renderer
	pages := NewPages(env, PagesConfig{DomainsFile: domainsFile, MaxDepth: 0, MaxPages: 5})
	assert.Equal(t, 0, pages.cfg.MaxDepth)

	summary, err := pages.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, []string{srv.URL + "/products"}, renderer.urls)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/products"}, hits)
}

func TestLoadDomains(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.Empty(t, LoadDomains(filepath.Join(dir, "missing.json"), nil))
	assert.Empty(t, LoadDomains("", nil))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`["not","an","object"]`), 0o600))
	assert.Empty(t, LoadDomains(bad, nil))

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"acme.com":["https://acme.com/","not a url"],"b.io":[]}`), 0o600))
	got := LoadDomains(good, nil)
	assert.Equal(t, []string{"https://acme.com/"}, got["acme.com"])
	assert.Contains(t, got, "b.io")
}

func TestPagePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("data", "html_product_pages", "acme.com", "index.pdf"),
		PagePath("data", "acme.com", "https://acme.com/"))
	assert.Equal(t, filepath.Join("data", "html_product_pages", "acme.com", "products_arm.pdf"),
		PagePath("data", "acme.com", "https://acme.com/products/arm"))
}

func TestRawURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://raw.githubusercontent.com/o/r/main/robot.urdf",
		RawURL("https://github.com/o/r/blob/main/robot.urdf"))
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Env{DataDir: t.TempDir()}, Config{})
	assert.Equal(t, []string{"pages", "standards", "urdf", "vendor"}, r.Names())
	s, ok := r.Lookup(" URDF ")
	require.True(t, ok)
	assert.Equal(t, NameGitHub, s.Name())
	_, ok = r.Lookup("ftp")
	assert.False(t, ok)
}
