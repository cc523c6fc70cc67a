package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lukemcguire/linkrot/result"
	"github.com/lukemcguire/linkrot/urlutil"
)

func TestParseArgs_PositionalBaseURL(t *testing.T) {
	cfg, opts, err := parseArgs([]string{"-no-tui", "-year", "2024", "https://x.substack.com"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cfg.BaseURL != "https://x.substack.com" || cfg.Year != 2024 {
		t.Errorf("cfg = %+v", cfg)
	}
	if !opts.noTUI {
		t.Error("expected -no-tui to be set")
	}
	if cfg.Concurrency != 5 || cfg.Timeout != 10 || cfg.MaxAttempts != 3 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestParseArgs_FlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkrot.yaml")
	content := "base_url: https://file.substack.com\nconcurrency: 8\ntimeout: 20\nretry_delay: 2s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := parseArgs([]string{"-config", path, "-timeout", "4"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cfg.BaseURL != "https://file.substack.com" {
		t.Errorf("BaseURL = %q, want value from file", cfg.BaseURL)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8 from file", cfg.Concurrency)
	}
	if cfg.Timeout != 4 {
		t.Errorf("Timeout = %d, want 4 from flag", cfg.Timeout)
	}
	if cfg.RetryDelay != 2*time.Second {
		t.Errorf("RetryDelay = %v, want 2s from file", cfg.RetryDelay)
	}
}

func TestParseArgs_InvalidBaseURL(t *testing.T) {
	_, _, err := parseArgs([]string{"x.substack.com"}, io.Discard)
	if !errors.Is(err, urlutil.ErrInvalidBaseURL) {
		t.Errorf("err = %v, want ErrInvalidBaseURL", err)
	}
}

func TestParseArgs_Help(t *testing.T) {
	var stderr bytes.Buffer
	_, _, err := parseArgs([]string{"-h"}, &stderr)
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("err = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(stderr.String(), "Usage: linkrot") {
		t.Errorf("usage not printed: %s", stderr.String())
	}
}

func TestRun_PostsOnlyJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/archive", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/p/alive">Alive</a><a href="/p/dead">Dead</a>`)
	})
	mux.HandleFunc("/p/alive", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/p/dead", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	metricsPath := filepath.Join(t.TempDir(), "linkrot.prom")
	var stdout, stderr bytes.Buffer
	code := run([]string{
		"-no-tui", "-posts-only", "-format", "json",
		"-metrics-file", metricsPath,
		server.URL,
	}, &stdout, &stderr)

	if code != exitBroken {
		t.Fatalf("exit code = %d, want %d; stderr: %s", code, exitBroken, stderr.String())
	}

	var links []result.LinkCheckResult
	if err := json.Unmarshal(stdout.Bytes(), &links); err != nil {
		t.Fatalf("decode output: %v\n%s", err, stdout.String())
	}
	if len(links) != 2 {
		t.Fatalf("got %d results, want 2", len(links))
	}
	if links[0].URL != server.URL+"/p/alive" || links[0].IsBroken {
		t.Errorf("first result = %+v, want working /p/alive", links[0])
	}
	if links[1].URL != server.URL+"/p/dead" || links[1].ErrorType != result.CategoryHTTPError {
		t.Errorf("second result = %+v, want HTTP_ERROR /p/dead", links[1])
	}

	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(data), `linkrot_links_total{category="HTTP_ERROR"} 1`) {
		t.Errorf("metrics file missing link counter:\n%s", data)
	}
}

func TestRun_ConfigErrorExitCode(t *testing.T) {
	var stderr bytes.Buffer
	if code := run([]string{"-no-tui", "-format", "xml", "https://x.substack.com"}, io.Discard, &stderr); code != exitError {
		t.Errorf("exit code = %d, want %d", code, exitError)
	}
	if !strings.Contains(stderr.String(), "format") {
		t.Errorf("stderr = %q, want format error", stderr.String())
	}
}
