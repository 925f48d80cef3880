//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	butterflyURL = "https://www.jewelchangiairport.com/en/attractions/butterfly-garden.html"
	wifiURL      = "https://www.changiairport.com/en/at-changi/wifi.html"
	cinemaURL    = "https://www.changiairport.com/en/discover/movie-theatre.html"
)

// E2ETestEnv holds the binaries, a fake model server and the data
// directories one test runs against
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	BinaryDir  string
	WorkDir    string
	LLM        *fakeOpenAI
	ServerURL  string
	HTTPClient *http.Client

	env       []string
	serverCmd *exec.Cmd
}

// SetupE2EEnv builds the binaries and starts the fake model server. The
// index lives in a file store under the test's temp dir unless extra
// CHIRP_* settings say otherwise.
func SetupE2EEnv(t *testing.T, extraEnv ...string) *E2ETestEnv {
	workDir := t.TempDir()
	llm := newFakeOpenAI()

	env := &E2ETestEnv{
		T:          t,
		Ctx:        context.Background(),
		WorkDir:    workDir,
		LLM:        llm,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.env = append([]string{
		"CHIRP_INDEX_STORE=file",
		"CHIRP_INDEX_DIR=" + filepath.Join(workDir, "index"),
		"CHIRP_OPENAI_API_KEY=sk-e2e",
		"CHIRP_OPENAI_BASE_URL=" + llm.BaseURL(),
		"CHIRP_EMBEDDING_MODEL=fake-embed",
		fmt.Sprintf("CHIRP_EMBEDDING_DIMENSIONS=%d", fakeDimensions),
		"CHIRP_GENERATION_MODEL=fake-chat",
		"CHIRP_SIMILARITY_FLOOR=0.3",
		"CHIRP_RETRY_MAX_ATTEMPTS=1",
		"CHIRP_RELOAD_INTERVAL=300ms",
	}, extraEnv...)

	env.BuildBinaries()
	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	e.StopServer()
	if e.LLM != nil {
		e.LLM.Close()
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinaries builds the chirp and chirpd binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "chirp-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"chirpd", "chirp"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// WriteData writes scraped records as JSON lines and returns the file path.
func (e *E2ETestEnv) WriteData(name string, records ...map[string]string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			e.T.Fatalf("failed to encode record: %v", err)
		}
	}
	path := filepath.Join(e.WorkDir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		e.T.Fatalf("failed to write data: %v", err)
	}
	return path
}

// RunChirpd runs the chirpd binary and returns its stdout
func (e *E2ETestEnv) RunChirpd(args ...string) (string, error) {
	return e.run("chirpd", e.env, args...)
}

// RunChirp runs the chirp client against the running server
func (e *E2ETestEnv) RunChirp(args ...string) (string, error) {
	return e.run("chirp", []string{"CHIRP_API_URL=" + e.ServerURL}, args...)
}

func (e *E2ETestEnv) run(binary string, env []string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, binary), args...)
	cmd.Dir = e.WorkDir
	cmd.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s %s: %w\n%s", binary, strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

// StartServer runs chirpd serve and waits until it answers /health.
func (e *E2ETestEnv) StartServer() {
	port, err := getFreePort()
	if err != nil {
		e.T.Fatalf("failed to get free port: %v", err)
	}

	cmd := exec.Command(filepath.Join(e.BinaryDir, "chirpd"), "serve")
	cmd.Dir = e.WorkDir
	cmd.Env = append(os.Environ(), e.env...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("CHIRP_PORT=%d", port))
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		e.T.Fatalf("failed to start chirpd: %v", err)
	}
	e.serverCmd = cmd
	e.ServerURL = fmt.Sprintf("http://localhost:%d", port)

	waitForStatus(e.T, e.ServerURL+"/health", http.StatusOK, 15*time.Second)
}

// StopServer interrupts chirpd and waits for it to exit.
func (e *E2ETestEnv) StopServer() {
	if e.serverCmd == nil || e.serverCmd.Process == nil {
		return
	}
	_ = e.serverCmd.Process.Signal(os.Interrupt)
	_ = e.serverCmd.Wait()
	e.serverCmd = nil
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body []byte) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body)
}

func (e *E2ETestEnv) doRequest(method, path string, body []byte) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(respBody, apiResp); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return apiResp, nil
}

func waitForStatus(t *testing.T, url string, status int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == status {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("%s did not return %d within %v", url, status, timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func corpus() []map[string]string {
	return []map[string]string{
		{
			"url":   butterflyURL,
			"title": "Butterfly Garden",
			"text":  "Jewel has a butterfly garden on level 1. The garden houses over 1000 butterflies across 40 species.",
		},
		{
			"url":   wifiURL,
			"title": "Free Wi-Fi",
			"text":  "Free Wi-Fi is available throughout all terminals. Connect to the network named WiFi@Changi.",
		},
		{
			"url":   cinemaURL,
			"title": "Movie Theatre",
			"text":  "Terminal 3 has a movie theatre that screens films free of charge around the clock.",
		},
	}
}
