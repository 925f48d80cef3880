package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/cloo-solutions/changichirp/internal/domain"
)

// Field aliases accepted from scraper output, in order of preference.
var (
	urlFields   = []string{"source_url", "url", "link", "href"}
	bodyFields  = []string{"body", "text", "content", "page_content"}
	titleFields = []string{"title", "name", "heading"}
	timeFields  = []string{"fetched_at", "scraped_at", "timestamp"}
)

const maxDerivedTitle = 120

// Result is the outcome of loading one input.
type Result struct {
	Documents []*domain.RawDocument
	// Skipped counts records that were not objects or had no URL.
	Skipped int
}

// Loader normalizes scraped records into RawDocuments.
type Loader struct {
	now func() time.Time
}

// New creates a Loader
func New() *Loader {
	return &Loader{now: time.Now}
}

// LoadFile reads a JSON-lines file or a JSON array file.
func (l *Loader) LoadFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	res, err := l.Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return res, nil
}

// Load reads JSON lines or a single JSON array of records.
func (l *Loader) Load(r io.Reader) (*Result, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return &Result{Documents: []*domain.RawDocument{}}, nil
	}
	if err != nil {
		return nil, err
	}

	res := &Result{Documents: []*domain.RawDocument{}}
	loadedAt := l.now().UTC()

	if first == '[' {
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		if !gjson.ValidBytes(data) {
			return nil, fmt.Errorf("input is not valid JSON")
		}
		gjson.ParseBytes(data).ForEach(func(_, record gjson.Result) bool {
			l.add(res, record, loadedAt)
			return true
		})
		return res, nil
	}

	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if !gjson.ValidBytes(raw) {
			log.WithField("line", line).Warn("Skipping malformed JSON record")
			res.Skipped++
			continue
		}
		l.add(res, gjson.ParseBytes(raw), loadedAt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return res, nil
}

func (l *Loader) add(res *Result, record gjson.Result, loadedAt time.Time) {
	doc, ok := Normalize(record, loadedAt)
	if !ok {
		res.Skipped++
		return
	}
	res.Documents = append(res.Documents, doc)
}

// Normalize maps one scraped record onto a RawDocument. It reports false for
// records that are not objects or carry no URL. Bodies are kept verbatim,
// including empty ones.
func Normalize(record gjson.Result, loadedAt time.Time) (*domain.RawDocument, bool) {
	if !record.IsObject() {
		return nil, false
	}
	url := strings.TrimSpace(firstString(record, urlFields))
	if url == "" {
		return nil, false
	}
	body := firstString(record, bodyFields)
	title := strings.TrimSpace(firstString(record, titleFields))
	if title == "" {
		title = deriveTitle(body)
	}
	fetchedAt, ok := firstTime(record, timeFields)
	if !ok {
		fetchedAt = loadedAt
	}
	return domain.NewRawDocument(url, title, body, fetchedAt), true
}

func firstString(record gjson.Result, fields []string) string {
	for _, f := range fields {
		v := record.Get(f)
		if v.Exists() && v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return v.Str
		}
	}
	return ""
}

func firstTime(record gjson.Result, fields []string) (time.Time, bool) {
	for _, f := range fields {
		v := record.Get(f)
		switch v.Type {
		case gjson.Number:
			return time.Unix(v.Int(), 0).UTC(), true
		case gjson.String:
			if t, err := time.Parse(time.RFC3339, v.Str); err == nil {
				return t.UTC(), true
			}
			if secs, err := strconv.ParseInt(v.Str, 10, 64); err == nil {
				return time.Unix(secs, 0).UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// deriveTitle uses the first non-blank body line, which is where the scraper
// writes the page title.
func deriveTitle(body string) string {
	for line := range strings.Lines(body) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxDerivedTitle {
			runes := []rune(line)
			line = strings.TrimSpace(string(runes[:maxDerivedTitle]))
		}
		return line
	}
	return ""
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		head, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch head[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.Discard(1)
			continue
		case 0xEF:
			// UTF-8 byte order mark
			if bom, err := br.Peek(3); err == nil && bom[1] == 0xBB && bom[2] == 0xBF {
				_, _ = br.Discard(3)
				continue
			}
		}
		return head[0], nil
	}
}
