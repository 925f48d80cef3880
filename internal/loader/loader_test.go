package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var fixedNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestLoader() *Loader {
	return &Loader{now: func() time.Time { return fixedNow }}
}

func TestLoad_JSONLines(t *testing.T) {
	input := `{"url": "https://www.jewelchangiairport.com/en/attractions/butterfly-garden.html", "text": "Butterfly Garden\nJewel has a butterfly garden on level 1."}

{"source_url": "https://www.changiairport.com/en/at-changi/wifi.html", "title": "Free Wi-Fi", "body": "Free Wi-Fi is available.", "fetched_at": "2025-02-20T10:00:00Z"}
not json at all
{"text": "no url here"}
["an", "array"]
{"link": "https://www.changiairport.com/empty", "content": ""}
`
	res, err := newTestLoader().Load(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, res.Documents, 3)
	assert.Equal(t, 3, res.Skipped)

	first := res.Documents[0]
	assert.Equal(t, "https://www.jewelchangiairport.com/en/attractions/butterfly-garden.html", first.SourceURL)
	assert.Equal(t, "Butterfly Garden", first.Title)
	assert.Equal(t, "Butterfly Garden\nJewel has a butterfly garden on level 1.", first.Body)
	assert.Equal(t, fixedNow, first.FetchedAt)

	second := res.Documents[1]
	assert.Equal(t, "Free Wi-Fi", second.Title)
	assert.Equal(t, time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC), second.FetchedAt)

	empty := res.Documents[2]
	assert.Equal(t, "https://www.changiairport.com/empty", empty.SourceURL)
	assert.True(t, empty.IsBlank())
}

func TestLoad_JSONArray(t *testing.T) {
	input := "\ufeff  [\n" +
		`{"href": "https://a", "page_content": "Body A", "heading": "A", "timestamp": 1700000000},` +
		`{"url": "https://b", "text": "Body B", "scraped_at": "1700000001"},` +
		`42` +
		"]"

	res, err := newTestLoader().Load(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, res.Documents, 2)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "A", res.Documents[0].Title)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), res.Documents[0].FetchedAt)
	assert.Equal(t, "Body B", res.Documents[1].Title)
	assert.Equal(t, time.Unix(1700000001, 0).UTC(), res.Documents[1].FetchedAt)
}

func TestLoad_InvalidArray(t *testing.T) {
	_, err := newTestLoader().Load(strings.NewReader(`[{"url": "https://a"`))
	assert.Error(t, err)
}

func TestLoad_Empty(t *testing.T) {
	res, err := newTestLoader().Load(strings.NewReader("  \n\n"))
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
	assert.Zero(t, res.Skipped)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraped_data.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"url":"https://a","text":"Terminal 1"}`+"\n"), 0o644))

	res, err := New().LoadFile(path)
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "Terminal 1", res.Documents[0].Title)

	_, err = New().LoadFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestNormalize_FieldPreference(t *testing.T) {
	record := gjson.Parse(`{"source_url": "https://primary", "url": "https://secondary", "body": "  ", "text": "fallback body", "title": "", "name": "Named"}`)

	doc, ok := Normalize(record, fixedNow)

	require.True(t, ok)
	assert.Equal(t, "https://primary", doc.SourceURL)
	assert.Equal(t, "fallback body", doc.Body)
	assert.Equal(t, "Named", doc.Title)
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "", deriveTitle(""))
	assert.Equal(t, "Jewel", deriveTitle("\n\n  Jewel  \nmore"))

	long := strings.Repeat("é", 200)
	assert.Equal(t, 120, len([]rune(deriveTitle(long))))
}
