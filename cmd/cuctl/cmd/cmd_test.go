package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	domain "github.com/bryanwahyu/cu-orchestrator/internal/domain/staging"
	"github.com/bryanwahyu/cu-orchestrator/internal/infra/storage"
)

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("CU")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// resetFlags puts every local flag back to its default; cobra keeps values between Execute calls.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// fakeCU is a minimal service: every action is accepted and succeeds on the first poll.
type fakeCU struct {
	mu     sync.Mutex
	bodies map[string]string
	srv    *httptest.Server
}

func newFakeCU(t *testing.T) *fakeCU {
	f := &fakeCU{bodies: map[string]string{}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.bodies[r.Method+" "+r.URL.Path] = string(b)
		f.mu.Unlock()

		if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/operations/op-1"):
			_, _ = w.Write([]byte(`{"id":"op-1","status":"Succeeded","result":{"analyzerId":"demo-1","contents":[]}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/contentunderstanding/analyzers":
			_, _ = w.Write([]byte(`{"value":[{"analyzerId":"demo-1","status":"ready"},{"analyzerId":"demo-2","status":"creating"}]}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPut || r.Method == http.MethodPost:
			w.Header().Set("Operation-Location", f.srv.URL+"/contentunderstanding/analyzers/demo-1/operations/op-1?api-version=x")
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCU) body(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func setup(t *testing.T) (*fakeCU, *storage.Memory) {
	t.Helper()
	resetViper()
	resetFlags(rootCmd)

	cu := newFakeCU(t)
	viper.Set("endpoint", cu.srv.URL)
	viper.Set("subscription-key", "test-key")
	viper.Set("poll-interval", time.Millisecond)
	viper.Set("timeout", 5*time.Second)

	mem := storage.NewMemory("https://acct.blob.core.windows.net/train")
	prev := newStore
	newStore = func(context.Context) (domain.ObjectStore, error) { return mem, nil }
	t.Cleanup(func() { newStore = prev })
	return cu, mem
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func trainingTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"a.pdf":             "A",
		"a.pdf.labels.json": "{}",
		"a.pdf.result.json": "{}",
	})
}

func TestStageThenValidate(t *testing.T) {
	_, mem := setup(t)
	dir := trainingTree(t)

	out, err := run(t, "stage", "--dir", dir, "--prefix", "invoices/v1")
	if err != nil {
		t.Fatalf("stage failed: %v (%s)", err, out)
	}
	if _, ok := mem.Get("invoices/v1/a.pdf.labels.json"); !ok {
		t.Error("labels were not uploaded")
	}

	out, err = run(t, "validate", "--dir", dir, "--prefix", "invoices/v1")
	if err != nil {
		t.Fatalf("validate failed: %v (%s)", err, out)
	}
	if !strings.Contains(out, "1 files staged") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestValidate_ReportsMissing(t *testing.T) {
	setup(t)
	dir := trainingTree(t)

	out, err := run(t, "validate", "--dir", dir, "--prefix", "empty")
	if err == nil {
		t.Fatal("expected error for unstaged prefix")
	}
	if !strings.Contains(out, "missing: empty/a.pdf.result.json") {
		t.Errorf("missing key not printed: %s", out)
	}
}

func TestCreateAnalyzer_WithStagedData(t *testing.T) {
	cu, _ := setup(t)
	dir := trainingTree(t)
	tmpl := filepath.Join(t.TempDir(), "analyzer.json")
	if err := os.WriteFile(tmpl, []byte(`{"baseAnalyzerId":"prebuilt-document"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "create-analyzer", "demo-1", "--template", tmpl, "--dir", dir, "--prefix", "invoices/v1", "--stage")
	if err != nil {
		t.Fatalf("create-analyzer failed: %v (%s)", err, out)
	}

	var res struct {
		Status    string `json:"status"`
		Operation struct {
			Result struct {
				AnalyzerID string `json:"analyzerId"`
			} `json:"result"`
		} `json:"operation"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, out)
	}
	if res.Status != "succeeded" || res.Operation.Result.AnalyzerID != "demo-1" {
		t.Errorf("unexpected result: %+v", res)
	}

	sent := cu.body("PUT /contentunderstanding/analyzers/demo-1")
	want := `{"baseAnalyzerId":"prebuilt-document","trainingData":{"containerUrl":"https://acct.blob.core.windows.net/train","kind":"blob","prefix":"invoices/v1/"}}`
	if sent != want {
		t.Errorf("request body\n got %s\nwant %s", sent, want)
	}
}

func TestCreateAnalyzer_PreconditionSendsNothing(t *testing.T) {
	cu, _ := setup(t)
	dir := trainingTree(t)

	_, err := run(t, "create-analyzer", "demo-1", "--dir", dir, "--prefix", "nothing-here")
	if err == nil {
		t.Fatal("expected precondition error")
	}
	if cu.body("PUT /contentunderstanding/analyzers/demo-1") != "" {
		t.Error("service was called despite missing staged data")
	}
}

func TestCreateAnalyzer_PrefixOnlyValidatesStore(t *testing.T) {
	cu, mem := setup(t)

	if _, err := run(t, "create-analyzer", "demo-1", "--prefix", "train"); err == nil {
		t.Fatal("expected precondition error for an empty prefix")
	}
	if cu.body("PUT /contentunderstanding/analyzers/demo-1") != "" {
		t.Fatal("service was called although nothing is staged")
	}

	mem.Put("train/a.pdf", []byte("A"), "")
	mem.Put("train/a.pdf.labels.json", []byte("{}"), "")
	mem.Put("train/a.pdf.result.json", []byte("{}"), "")
	resetFlags(rootCmd)
	out, err := run(t, "create-analyzer", "demo-1", "--prefix", "train")
	if err != nil {
		t.Fatalf("create-analyzer failed: %v (%s)", err, out)
	}
	if !strings.Contains(cu.body("PUT /contentunderstanding/analyzers/demo-1"), `"prefix":"train/"`) {
		t.Errorf("training data not referenced: %s", cu.body("PUT /contentunderstanding/analyzers/demo-1"))
	}
}

func TestAnalyze_URL(t *testing.T) {
	cu, _ := setup(t)

	out, err := run(t, "analyze", "demo-1", "--url", "https://example.com/a.pdf?x=1&y=2")
	if err != nil {
		t.Fatalf("analyze failed: %v (%s)", err, out)
	}
	if got := cu.body("POST /contentunderstanding/analyzers/demo-1:analyze"); got != `{"url":"https://example.com/a.pdf?x=1&y=2"}` {
		t.Errorf("unexpected analyze body: %s", got)
	}
	if !strings.Contains(out, `"analyzerId": "demo-1"`) && !strings.Contains(out, `"analyzerId":"demo-1"`) {
		t.Errorf("result not printed: %s", out)
	}
}

func TestAnalyze_FlagValidation(t *testing.T) {
	setup(t)
	if _, err := run(t, "analyze", "demo-1"); err == nil {
		t.Error("expected error without --file or --url")
	}
	resetFlags(rootCmd)
	if _, err := run(t, "analyze", "demo-1", "--url", "https://x", "--remote"); err == nil {
		t.Error("expected error for --remote without --file")
	}
}

func TestListAndDelete(t *testing.T) {
	setup(t)

	out, err := run(t, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "demo-1\tready") || !strings.Contains(out, "demo-2\tcreating") {
		t.Errorf("unexpected list output: %s", out)
	}

	out, err = run(t, "delete", "demo-1")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !strings.Contains(out, "analyzer demo-1 deleted") {
		t.Errorf("unexpected delete output: %s", out)
	}
}

func TestEnvBinding(t *testing.T) {
	resetViper()
	t.Setenv("CU_POLL_INTERVAL", "3s")
	t.Setenv("CU_SUBSCRIPTION_KEY", "from-env")

	if got := viper.GetDuration("poll-interval"); got != 3*time.Second {
		t.Errorf("poll-interval = %v, want 3s", got)
	}
	if got := viper.GetString("subscription-key"); got != "from-env" {
		t.Errorf("subscription-key = %q", got)
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	want := map[string]bool{"stage": false, "validate": false, "create-analyzer": false, "analyze": false, "list": false, "delete": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}
