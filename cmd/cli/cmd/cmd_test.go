package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dvloznov/finance-manager/internal/snapshot"
)

const seedYAML = `
banks:
  - name: BankA
    accounts:
      - name: Chequing
        type: Checking
        balance: "150.00"
  - name: BankB
    accounts:
      - name: Savings
        type: Savings
`

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string]string
}

func (f *fakeUploader) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+object] = string(data)
	return nil
}

type harness struct {
	t        *testing.T
	dir      string
	uploader *fakeUploader
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_BACKEND", "bolt")
	t.Setenv("BOLT_PATH", filepath.Join(dir, "ledger.db"))
	t.Setenv("AUDIT_DB_PATH", filepath.Join(dir, "audit.db"))
	t.Setenv("GCS_BUCKET", "")
	t.Setenv("LOG_LEVEL", "error")

	if err := os.WriteFile(filepath.Join(dir, "accounts.yaml"), []byte(seedYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	return &harness{t: t, dir: dir, uploader: &fakeUploader{objects: map[string]string{}}}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	c := &cli{uploader: func(ctx context.Context) (snapshot.Uploader, func() error, error) {
		return h.uploader, func() error { return nil }, nil
	}}
	root := newRootCmd(c)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_SetupBalancesReconcile(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("setup", "--file", filepath.Join(h.dir, "accounts.yaml"))
	if err != nil {
		t.Fatalf("setup error = %v", err)
	}
	if !strings.Contains(out, "Added 2 account(s), updated 0, 1 opening record(s)") {
		t.Errorf("setup output = %q", out)
	}

	out, err = h.run("balances", "--json")
	if err != nil {
		t.Fatalf("balances error = %v", err)
	}
	var summary struct {
		GrandTotal string `json:"grand_total"`
		Banks      []struct {
			Bank string `json:"bank"`
		} `json:"banks"`
	}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("balances output %q: %v", out, err)
	}
	if summary.GrandTotal != "150" || len(summary.Banks) != 2 {
		t.Errorf("summary = %+v", summary)
	}

	out, err = h.run("list", "--bank", "BankA")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(out, "Opening Balance") || !strings.Contains(out, "1 record(s)") {
		t.Errorf("list output = %q", out)
	}

	out, err = h.run("reconcile")
	if err != nil {
		t.Fatalf("reconcile error = %v", err)
	}
	if !strings.Contains(out, "consistent") {
		t.Errorf("reconcile output = %q", out)
	}

	out, err = h.run("audit", "--outcome", "ok")
	if err != nil {
		t.Fatalf("audit error = %v", err)
	}
	if !strings.Contains(out, "setup") {
		t.Errorf("audit output = %q", out)
	}
}

func TestCLI_Errors(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"setup without file", []string{"setup"}, "file"},
		{"missing seed file", []string{"setup", "--file", filepath.Join(h.dir, "nope.yaml")}, "accounts file"},
		{"bad filter", []string{"list", "--direction", "sideways"}, "direction"},
		{"snapshot without bucket", []string{"snapshot"}, "bucket"},
		{"unknown command", []string{"frobnicate"}, "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.run(tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestCLI_Snapshot(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run("setup", "--file", filepath.Join(h.dir, "accounts.yaml")); err != nil {
		t.Fatal(err)
	}

	out, err := h.run("snapshot", "--bucket", "gs://backups/ledger/")
	if err != nil {
		t.Fatalf("snapshot error = %v", err)
	}
	if !strings.Contains(out, "gs://backups/ledger/") {
		t.Errorf("snapshot output = %q", out)
	}

	var ledgerCSV, registryCSV string
	for name, body := range h.uploader.objects {
		switch {
		case strings.HasPrefix(name, "backups/ledger/") && strings.HasSuffix(name, "/ledger.csv"):
			ledgerCSV = body
		case strings.HasPrefix(name, "backups/ledger/") && strings.HasSuffix(name, "/registry.csv"):
			registryCSV = body
		}
	}
	if !strings.Contains(ledgerCSV, "Opening Balance") {
		t.Errorf("ledger.csv = %q", ledgerCSV)
	}
	if !strings.Contains(registryCSV, "Savings") {
		t.Errorf("registry.csv = %q", registryCSV)
	}
}

func TestSplitBucket(t *testing.T) {
	tests := []struct {
		target  string
		bucket  string
		prefix  string
		wantErr bool
	}{
		{"backups", "backups", "", false},
		{"gs://backups", "backups", "", false},
		{"gs://backups/", "backups", "", false},
		{"gs://backups/ledger/daily/", "backups", "ledger/daily", false},
		{"gs://", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			b, p, err := splitBucket(tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("splitBucket() error = %v, wantErr %v", err, tt.wantErr)
			}
			if b != tt.bucket || p != tt.prefix {
				t.Errorf("splitBucket() = %q, %q", b, p)
			}
		})
	}
}
