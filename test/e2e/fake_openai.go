//go:build e2e

package e2e

import (
	"encoding/json"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/tidwall/gjson"
)

const fakeDimensions = 512

var fakeStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "what": true,
	"there": true, "is": true, "at": true, "in": true, "on": true, "of": true,
	"does": true, "how": true, "with": true, "any": true, "its": true, "has": true,
}

// fakeOpenAI serves the two OpenAI endpoints the binaries call. Embeddings
// are hashed bags of words; chat replies repeat the first sentence of the
// first context passage.
type fakeOpenAI struct {
	*httptest.Server
	chatCalls  atomic.Int64
	embedCalls atomic.Int64
}

func newFakeOpenAI() *fakeOpenAI {
	f := &fakeOpenAI{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/embeddings", f.embeddings)
	mux.HandleFunc("POST /v1/chat/completions", f.chat)
	f.Server = httptest.NewServer(mux)
	return f
}

// BaseURL is the value for CHIRP_OPENAI_BASE_URL.
func (f *fakeOpenAI) BaseURL() string {
	return f.URL + "/v1"
}

func (f *fakeOpenAI) embeddings(w http.ResponseWriter, r *http.Request) {
	f.embedCalls.Add(1)
	body, _ := io.ReadAll(r.Body)

	type item struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	var data []item
	gjson.GetBytes(body, "input").ForEach(func(key, value gjson.Result) bool {
		data = append(data, item{Object: "embedding", Embedding: hashEmbed(value.String()), Index: int(key.Int())})
		return true
	})

	writeJSON(w, map[string]any{
		"object": "list",
		"data":   data,
		"model":  gjson.GetBytes(body, "model").String(),
		"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
	})
}

func (f *fakeOpenAI) chat(w http.ResponseWriter, r *http.Request) {
	f.chatCalls.Add(1)
	body, _ := io.ReadAll(r.Body)
	prompt := gjson.GetBytes(body, `messages.#(role=="user").content`).String()

	writeJSON(w, map[string]any{
		"id":      "chatcmpl-e2e",
		"object":  "chat.completion",
		"created": 0,
		"model":   gjson.GetBytes(body, "model").String(),
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": firstSentence(prompt)},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	})
}

// firstSentence returns the first sentence of passage [1] in a prompt.
func firstSentence(prompt string) string {
	lines := strings.Split(prompt, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "[1] ") && i+1 < len(lines) {
			text := lines[i+1]
			if end := strings.Index(text, ". "); end >= 0 {
				return text[:end+1]
			}
			return text
		}
	}
	return "I don't know."
}

func hashEmbed(text string) []float32 {
	vec := make([]float32, fakeDimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		if len(word) < 3 || fakeStopwords[word] {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%fakeDimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
