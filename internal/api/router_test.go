package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finance-manager/internal/audit"
	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/infra/memory"
	"github.com/dvloznov/finance-manager/internal/jobs"
	"github.com/dvloznov/finance-manager/internal/jobs/inmemory"
	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/dvloznov/finance-manager/internal/logger"
	"github.com/shopspring/decimal"
)

type testServer struct {
	*httptest.Server
	registry *memory.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.NewWithWriter(&bytes.Buffer{})

	auditStore, err := audit.Open(t.TempDir() + "/audit.db")
	if err != nil {
		t.Fatalf("audit.Open() error = %v", err)
	}
	t.Cleanup(func() { auditStore.Close() })

	registry := memory.NewRegistry(
		domain.AccountEntry{Bank: "BankA", Account: "Chequing", Type: "Checking", Balance: decimal.Zero},
		domain.AccountEntry{Bank: "BankB", Account: "Savings", Type: "Savings", Balance: decimal.Zero},
	)
	svc := ledger.NewService(memory.NewStore(), registry, ledger.WithAuditor(auditStore))

	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(8, jobStore)
	ctx, cancel := context.WithCancel(context.Background())
	if err := queue.Start(ctx, jobs.NewReconcileHandler(svc)); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cancel()
		queue.Stop(context.Background())
	})

	srv := httptest.NewServer(NewRouter(Deps{
		Ledger:         svc,
		Jobs:           queue,
		JobStore:       jobStore,
		Audit:          auditStore,
		RequestTimeout: 5 * time.Second,
		Log:            log,
	}))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, registry: registry}
}

func (s *testServer) post(t *testing.T, path string, form url.Values) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.PostForm(s.URL+path, form)
	if err != nil {
		t.Fatal(err)
	}
	return readJSON(t, resp)
}

func (s *testServer) get(t *testing.T, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(s.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	return readJSON(t, resp)
}

func readJSON(t *testing.T, resp *http.Response) (int, map[string]interface{}) {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, body
}

func TestRouter_InteracScenarioEndToEnd(t *testing.T) {
	s := newTestServer(t)

	status, body := s.post(t, "/add_transaction", url.Values{
		"date":                  {"2024-01-05"},
		"time":                  {"10:00"},
		"type":                  {"Interac"},
		"bank":                  {"BankA"},
		"account":               {"Chequing"},
		"transaction_direction": {"Outgoing"},
		"amount":                {"100"},
		"purpose":               {"rent share"},
		"interac_type":          {"Across Accounts"},
		"target_bank":           {"BankB"},
		"target_account":        {"Savings"},
	})
	if status != http.StatusOK {
		t.Fatalf("add status = %d, body %v", status, body)
	}

	status, body = s.get(t, "/view_transactions?keyword=interac+transfer")
	if status != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("search for second leg: status %d body %v", status, body)
	}

	status, body = s.get(t, "/balances")
	if status != http.StatusOK || body["grand_total"] != "0" {
		t.Errorf("balances: status %d body %v", status, body)
	}

	status, body = s.get(t, "/audit?outcome=ok")
	if status != http.StatusOK || body["count"].(float64) < 1 {
		t.Errorf("audit: status %d body %v", status, body)
	}
}

func TestRouter_ReconcileJob(t *testing.T) {
	s := newTestServer(t)

	// Drift the registry behind the ledger's back.
	s.registry.AdjustBalance(context.Background(), "BankA", "Chequing", decimal.NewFromInt(7))

	status, body := s.post(t, "/reconcile", url.Values{"apply": {"true"}})
	if status != http.StatusAccepted {
		t.Fatalf("reconcile status = %d, body %v", status, body)
	}
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatal("missing job id")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		status, body = s.get(t, "/jobs/"+jobID)
		if status != http.StatusOK {
			t.Fatalf("job status = %d, body %v", status, body)
		}
		if body["status"] == string(jobs.JobStatusCompleted) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete: %v", body)
		}
		time.Sleep(10 * time.Millisecond)
	}

	report := body["report"].(map[string]interface{})
	if report["applied"] != true || len(report["drifted"].([]interface{})) != 1 {
		t.Errorf("report = %v", report)
	}
	e, _ := s.registry.FindByKey(context.Background(), "BankA", "Chequing")
	if !e.Balance.IsZero() {
		t.Errorf("balance after apply = %s, want 0", e.Balance)
	}

	status, body = s.get(t, "/jobs")
	if status != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("list jobs: status %d body %v", status, body)
	}
}

func TestRouter_StatusMapping(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		form       url.Values
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", nil, http.StatusOK},
		{"validation", http.MethodPost, "/add_transaction", url.Values{"date": {"bad"}}, http.StatusBadRequest},
		{"unknown record", http.MethodPost, "/delete_transaction", url.Values{"id": {"missing"}}, http.StatusNotFound},
		{"unknown job", http.MethodGet, "/jobs/missing", nil, http.StatusNotFound},
		{"wrong method", http.MethodGet, "/add_transaction", nil, http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/nope", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var status int
			if tt.method == http.MethodPost {
				status, _ = s.post(t, tt.path, tt.form)
			} else {
				status, _ = s.get(t, tt.path)
			}
			if status != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, status, tt.wantStatus)
			}
		})
	}

	resp, err := http.Get(s.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") || resp.Header.Get("X-Request-ID") == "" {
		t.Errorf("headers = %v", resp.Header)
	}
}
