package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/monscrape/internal/testutil"
	"github.com/Sternrassler/monscrape/pkg/config"
)

const testCollector = "ABC123"

type testEnv struct {
	mock     *testutil.MockAPI
	dir      string
	cacheDir string
	env      map[string]string
}

func newTestEnv(t *testing.T, responses int) *testEnv {
	t.Helper()

	mock := testutil.NewMockAPI(testutil.MakeResponses("S1", responses))
	t.Cleanup(mock.Close)

	dir := t.TempDir()
	return &testEnv{
		mock:     mock,
		dir:      dir,
		cacheDir: filepath.Join(dir, "cache"),
		env: map[string]string{
			config.EnvToken:   "test-token",
			config.EnvBaseURL: mock.URL(),
		},
	}
}

// run executes the command with the environment's config, cache and API.
func (e *testEnv) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	full := append([]string{
		"--config", filepath.Join(e.dir, "absent.yaml"),
		"--cache-dir", e.cacheDir,
		"--log-level", "error",
	}, args...)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), full, &stdout, &stderr, func(key string) string {
		return e.env[key]
	})
	return code, stdout.String(), stderr.String()
}

func TestRun_MissingToken(t *testing.T) {
	e := newTestEnv(t, 3)
	delete(e.env, config.EnvToken)

	code, _, stderr := e.run(t, testCollector, "-")

	if code != exitMissingToken {
		t.Errorf("exit code = %d, want %d", code, exitMissingToken)
	}
	if !strings.Contains(stderr, config.EnvToken) {
		t.Errorf("stderr = %q, want mention of %s", stderr, config.EnvToken)
	}
	if e.mock.RequestCount() != 0 {
		t.Errorf("RequestCount() = %d, want 0", e.mock.RequestCount())
	}
}

func TestRun_TokenFromConfigFile(t *testing.T) {
	e := newTestEnv(t, 1)
	delete(e.env, config.EnvToken)

	configPath := filepath.Join(e.dir, "monscrape.yaml")
	content := "auth:\n  token: file-token\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--config", configPath,
		"--cache-dir", e.cacheDir,
		"--log-level", "error",
		testCollector, "-",
	}, &stdout, &stderr, func(key string) string { return e.env[key] })

	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if got := e.mock.LastAuthorization(); got != "Bearer file-token" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer file-token")
	}
}

func TestRun_DownloadAndProcess(t *testing.T) {
	e := newTestEnv(t, 5)
	dest := filepath.Join(e.dir, "report.txt")

	code, stdout, stderr := e.run(t, testCollector, dest)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}

	want := filepath.Join(e.dir, "report.csv")
	if stdout != "Wrote 5 rows to "+want+"\n" {
		t.Errorf("stdout = %q", stdout)
	}

	f, err := os.Open(want)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 6 {
		t.Errorf("csv rows = %d, want header + 5", len(rows))
	}
	if rows[0][0] != "Survey ID" {
		t.Errorf("header[0] = %q, want %q", rows[0][0], "Survey ID")
	}
	if !strings.Contains(stderr, "S1") {
		t.Errorf("summary table missing from stderr: %q", stderr)
	}
}

func TestRun_Stdout(t *testing.T) {
	e := newTestEnv(t, 3)

	code, stdout, stderr := e.run(t, testCollector, "-")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}

	rows, err := csv.NewReader(strings.NewReader(stdout)).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("csv rows = %d, want header + 3", len(rows))
	}
}

func TestRun_DownloadOnlyThenProcessOnly(t *testing.T) {
	e := newTestEnv(t, 4)

	code, stdout, stderr := e.run(t, "-d", testCollector)
	if code != exitOK {
		t.Fatalf("download exit code = %d, stderr = %s", code, stderr)
	}
	if stdout != "" {
		t.Errorf("download stdout = %q, want empty", stdout)
	}

	entries, err := os.ReadDir(filepath.Join(e.cacheDir, testCollector))
	if err != nil {
		t.Fatalf("read cache partition: %v", err)
	}
	// the start URL and page 2
	if len(entries) != 2 {
		t.Errorf("cache entries = %d, want 2", len(entries))
	}

	e.mock.Reset()
	code, stdout, stderr = e.run(t, "--process", testCollector, "-")
	if code != exitOK {
		t.Fatalf("process exit code = %d, stderr = %s", code, stderr)
	}
	if e.mock.RequestCount() != 0 {
		t.Errorf("process-only made %d requests, want 0", e.mock.RequestCount())
	}

	rows, err := csv.NewReader(strings.NewReader(stdout)).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 5 {
		t.Errorf("csv rows = %d, want header + 4", len(rows))
	}
}

func TestRun_SecondRunUsesCache(t *testing.T) {
	e := newTestEnv(t, 5)

	if code, _, stderr := e.run(t, "-d", testCollector); code != exitOK {
		t.Fatalf("first run exit code = %d, stderr = %s", code, stderr)
	}

	e.mock.Reset()
	if code, _, stderr := e.run(t, "-d", testCollector); code != exitOK {
		t.Fatalf("second run exit code = %d, stderr = %s", code, stderr)
	}

	// Only the live refresh of the first page.
	if got := e.mock.RequestCount(); got != 1 {
		t.Errorf("RequestCount() = %d, want 1", got)
	}
}

func TestRun_TransportError(t *testing.T) {
	e := newTestEnv(t, 3)
	e.mock.SetStatus(401)

	code, _, stderr := e.run(t, testCollector, "-")

	if code != exitError {
		t.Errorf("exit code = %d, want %d", code, exitError)
	}
	if !strings.Contains(stderr, "status 401") {
		t.Errorf("stderr = %q, want status 401", stderr)
	}
}

func TestRun_InvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no collector", nil},
		{"too many args", []string{"a", "b", "c"}},
		{"bad log level", []string{"--log-level", "loud", testCollector, "-"}},
		{"bad collector", []string{"../etc", "-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, 1)
			code, _, _ := e.run(t, tt.args...)
			if code != exitError {
				t.Errorf("exit code = %d, want %d", code, exitError)
			}
		})
	}
}

func TestRun_Invalidate(t *testing.T) {
	e := newTestEnv(t, 3)

	if code, _, stderr := e.run(t, "-d", testCollector); code != exitOK {
		t.Fatalf("download exit code = %d, stderr = %s", code, stderr)
	}

	code, stdout, stderr := e.run(t, "invalidate", testCollector)
	if code != exitOK {
		t.Fatalf("invalidate exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "Invalidated cache of "+testCollector) {
		t.Errorf("stdout = %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(e.cacheDir, testCollector)); !os.IsNotExist(err) {
		t.Errorf("partition still exists: %v", err)
	}

	// Nothing left: tolerated, unless strict.
	if code, _, _ := e.run(t, "invalidate", testCollector); code != exitOK {
		t.Errorf("second invalidate exit code = %d, want %d", code, exitOK)
	}
	if code, _, _ := e.run(t, "invalidate", "--strict", testCollector); code != exitError {
		t.Errorf("strict invalidate exit code = %d, want %d", code, exitError)
	}
}

func TestRun_MetricsOut(t *testing.T) {
	e := newTestEnv(t, 2)
	metricsPath := filepath.Join(e.dir, "metrics.txt")

	code, _, stderr := e.run(t, "--metrics-out", metricsPath, testCollector, filepath.Join(e.dir, "out"))
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}

	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), "monscrape_walk_pages_total") {
		t.Errorf("metrics dump missing walk counter:\n%s", data)
	}
	if strings.Contains(string(data), "go_goroutines") {
		t.Error("metrics dump should not include runtime metrics")
	}
}

func TestRun_CollectorNamedLikeSubcommand(t *testing.T) {
	e := newTestEnv(t, 1)

	code, _, stderr := e.run(t, "-d", "--", "invalidate")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if got := e.mock.RequestsFor("/v3/collectors/invalidate/responses/bulk"); got != 2 {
		t.Errorf("RequestsFor(invalidate bulk) = %d, want 2", got)
	}
}
