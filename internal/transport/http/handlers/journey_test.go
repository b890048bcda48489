package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"crm/internal/app/server"
	"crm/internal/platform/config"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error any             `json:"error"`
}

func TestSalesTargetJourney(t *testing.T) {
	app, ts, cfg := newJourneyApp(t)
	defer app.Close()
	defer ts.Close()

	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)

	salesRoleID := roleIDByName(t, client, ts.URL, token, "sales")
	branchID := createBranch(t, client, ts.URL, token, fmt.Sprintf("Branch-%d", time.Now().UnixNano()))

	salesEmail := fmt.Sprintf("journey-%d@example.com", time.Now().UnixNano())
	salesUserID := createUser(t, client, ts.URL, token, salesEmail, salesRoleID, branchID)

	goals := setGoals(t, client, ts.URL, token, salesUserID, map[string]any{
		"targetSalesAmount": 10000,
		"targetNewClients":  5,
		"targetCalls":       40,
		"currency":          "USD",
		"isRecurring":       true,
		"recurringInterval": "monthly",
	})
	if goals["id"] == "" {
		t.Fatal("expected target id after goal assignment")
	}

	txID := fmt.Sprintf("erp-%d", time.Now().UnixNano())
	result := erpSync(t, client, ts.URL, cfg.ERPWebhookKey, app, cfg.SeedTenantName, salesUserID, map[string]any{
		"transactionId": txID,
		"updateMode":    "INCREMENT",
		"updates": map[string]any{
			"currentSalesAmount": 2500.50,
			"currentCalls":       3,
		},
	})
	if result["status"] != "applied" {
		t.Fatalf("expected applied sync, got %v", result["status"])
	}
	updated, _ := result["updatedValues"].(map[string]any)
	if got := updated["currentSalesAmount"]; got != 2500.50 {
		t.Fatalf("expected currentSalesAmount 2500.50, got %v", got)
	}

	replay := erpSync(t, client, ts.URL, cfg.ERPWebhookKey, app, cfg.SeedTenantName, salesUserID, map[string]any{
		"transactionId": txID,
		"updateMode":    "INCREMENT",
		"updates": map[string]any{
			"currentSalesAmount": 2500.50,
			"currentCalls":       3,
		},
	})
	if replay["replayed"] != true {
		t.Fatalf("expected replayed transaction, got %v", replay)
	}
	replayed, _ := replay["updatedValues"].(map[string]any)
	if got := replayed["currentSalesAmount"]; got != 2500.50 {
		t.Fatalf("expected replay to return first-run values, got %v", got)
	}

	record := getTarget(t, client, ts.URL, token, salesUserID)
	if got := record["currentSalesAmount"]; got != 2500.50 {
		t.Fatalf("expected current sales 2500.50 after single apply, got %v", got)
	}

	progress := getProgress(t, client, ts.URL, token, salesUserID)
	metrics, _ := progress["progress"].(map[string]any)
	if got := metrics["currentCalls"]; got != 7.5 {
		t.Fatalf("expected calls progress 7.5%%, got %v", got)
	}

	decrement := erpSync(t, client, ts.URL, cfg.ERPWebhookKey, app, cfg.SeedTenantName, salesUserID, map[string]any{
		"transactionId": txID + "-reversal",
		"updateMode":    "DECREMENT",
		"updates": map[string]any{
			"currentSalesAmount": 500.50,
		},
		"metadata": map[string]any{"updateReason": "order returned"},
	})
	if decrement["status"] != "applied" {
		t.Fatalf("expected applied decrement, got %v", decrement)
	}
	decremented, _ := decrement["updatedValues"].(map[string]any)
	if got := decremented["currentSalesAmount"]; got != 2000.0 {
		t.Fatalf("expected currentSalesAmount 2000 after decrement, got %v", got)
	}

	history := getJSON(t, client, ts.URL+"/api/v1/targets/"+salesUserID+"/sync-transactions", token)
	var syncRecords []map[string]any
	if err := json.Unmarshal(history.Data, &syncRecords); err != nil {
		t.Fatalf("failed to decode sync transactions: %v", err)
	}
	if len(syncRecords) != 2 {
		t.Fatalf("expected two recorded sync transactions, got %d", len(syncRecords))
	}
}

func TestExternalSyncRejectsUnknownMetricAndMode(t *testing.T) {
	app, ts, cfg := newJourneyApp(t)
	defer app.Close()
	defer ts.Close()

	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
	salesRoleID := roleIDByName(t, client, ts.URL, token, "sales")
	userID := createUser(t, client, ts.URL, token, fmt.Sprintf("reject-%d@example.com", time.Now().UnixNano()), salesRoleID, "")
	setGoals(t, client, ts.URL, token, userID, map[string]any{"targetSalesAmount": 100})

	status, env := erpSyncStatus(t, client, ts.URL, cfg.ERPWebhookKey, app, cfg.SeedTenantName, userID, map[string]any{
		"transactionId": fmt.Sprintf("bad-%d", time.Now().UnixNano()),
		"updateMode":    "MULTIPLY",
		"updates":       map[string]any{"currentSalesAmount": 2},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown mode, got %d: %v", status, env)
	}

	status, env = erpSyncStatus(t, client, ts.URL, cfg.ERPWebhookKey, app, cfg.SeedTenantName, userID, map[string]any{
		"transactionId": fmt.Sprintf("bad-metric-%d", time.Now().UnixNano()),
		"updateMode":    "INCREMENT",
		"updates":       map[string]any{"currentCommission": 10},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown metric, got %d: %v", status, env)
	}
}

func TestExternalSyncRequiresWebhookKey(t *testing.T) {
	app, ts, cfg := newJourneyApp(t)
	defer app.Close()
	defer ts.Close()

	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
	salesRoleID := roleIDByName(t, client, ts.URL, token, "sales")
	userID := createUser(t, client, ts.URL, token, fmt.Sprintf("key-%d@example.com", time.Now().UnixNano()), salesRoleID, "")
	setGoals(t, client, ts.URL, token, userID, map[string]any{"targetSalesAmount": 100})

	raw, _ := json.Marshal(map[string]any{
		"transactionId": "unauthorized-tx",
		"updateMode":    "INCREMENT",
		"updates":       map[string]any{"currentSalesAmount": 1},
	})
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/targets/"+userID+"/erp-sync", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Key", "wrong-key")
	req.Header.Set("X-Tenant-ID", tenantIDByName(t, app, cfg.SeedTenantName))

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong webhook key, got %d", resp.StatusCode)
	}
}

func newJourneyApp(t *testing.T) (*server.App, *httptest.Server, config.Config) {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := config.Config{
		DatabaseURL:        dbURL,
		JWTSecret:          "test-secret",
		ERPWebhookKey:      "test-webhook-key",
		AppBaseURL:         "http://localhost:8080",
		Environment:        "test",
		SeedTenantName:     "Test Tenant",
		SeedAdminEmail:     "admin@test.local",
		SeedAdminPassword:  "ChangeMe123!",
		EmailFrom:          "no-reply@test.local",
		RunMigrations:      true,
		RunSeed:            true,
		MaxBodyBytes:       1048576,
		RateLimitPerMinute: 1000,
		TargetCacheTTL:     time.Millisecond,
		MetricsEnabled:     true,
	}

	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}

	ts := httptest.NewServer(app.Router)
	return app, ts, cfg
}

func tenantIDByName(t *testing.T, app *server.App, name string) string {
	t.Helper()
	var tenantID string
	if err := app.DB.QueryRow(context.Background(), "SELECT id FROM tenants WHERE name = $1", name).Scan(&tenantID); err != nil {
		t.Fatalf("failed to load tenant: %v", err)
	}
	return tenantID
}

func login(t *testing.T, client *http.Client, baseURL, email, password string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("expected token")
	}
	return token
}

func roleIDByName(t *testing.T, client *http.Client, baseURL, token, name string) string {
	t.Helper()
	resp := getJSON(t, client, baseURL+"/api/v1/roles", token)
	var roles []map[string]any
	if err := json.Unmarshal(resp.Data, &roles); err != nil {
		t.Fatalf("failed to decode roles response: %v", err)
	}
	for _, role := range roles {
		if role["name"] == name {
			id, _ := role["id"].(string)
			return id
		}
	}
	t.Fatalf("role %q not found", name)
	return ""
}

func createBranch(t *testing.T, client *http.Client, baseURL, token, name string) string {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/api/v1/branches", token, map[string]any{
		"name":        name,
		"timezone":    "UTC",
		"workingDays": []int{1, 2, 3, 4, 5},
	})
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode branch response: %v", err)
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatal("expected branch id")
	}
	return id
}

func createUser(t *testing.T, client *http.Client, baseURL, token, email, roleID, branchID string) string {
	t.Helper()
	body := map[string]any{
		"email":     email,
		"password":  "Journey123!",
		"firstName": "Journey",
		"lastName":  "Tester",
		"roleId":    roleID,
	}
	if branchID != "" {
		body["branchId"] = branchID
	}
	resp := postJSON(t, client, baseURL+"/api/v1/users", token, body)
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode user response: %v", err)
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatal("expected user id")
	}
	return id
}

func setGoals(t *testing.T, client *http.Client, baseURL, token, userID string, goals map[string]any) map[string]any {
	t.Helper()
	resp := putJSON(t, client, baseURL+"/api/v1/targets/"+userID, token, goals)
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode goals response: %v", err)
	}
	return payload
}

func getTarget(t *testing.T, client *http.Client, baseURL, token, userID string) map[string]any {
	t.Helper()
	resp := getJSON(t, client, baseURL+"/api/v1/targets/"+userID, token)
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode target response: %v", err)
	}
	return payload
}

func getProgress(t *testing.T, client *http.Client, baseURL, token, userID string) map[string]any {
	t.Helper()
	resp := getJSON(t, client, baseURL+"/api/v1/targets/"+userID+"/progress", token)
	var payload map[string]any
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		t.Fatalf("failed to decode progress response: %v", err)
	}
	return payload
}

func erpSync(t *testing.T, client *http.Client, baseURL, webhookKey string, app *server.App, tenantName, userID string, body map[string]any) map[string]any {
	t.Helper()
	status, payload := erpSyncStatus(t, client, baseURL, webhookKey, app, tenantName, userID, body)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for erp sync, got %d: %v", status, payload)
	}
	return payload
}

func erpSyncStatus(t *testing.T, client *http.Client, baseURL, webhookKey string, app *server.App, tenantName, userID string, body map[string]any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal sync body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/targets/"+userID+"/erp-sync", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Key", webhookKey)
	req.Header.Set("X-Tenant-ID", tenantIDByName(t, app, tenantName))

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	rawResp, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	var env struct {
		Data  map[string]any `json:"data"`
		Error map[string]any `json:"error"`
	}
	if err := json.Unmarshal(rawResp, &env); err != nil {
		t.Fatalf("failed to decode sync response %q: %v", string(rawResp), err)
	}
	if env.Data != nil {
		return resp.StatusCode, env.Data
	}
	return resp.StatusCode, env.Error
}

func postJSON(t *testing.T, client *http.Client, url, token string, body any) envelope {
	t.Helper()
	return doJSON(t, client, http.MethodPost, url, token, body)
}

func putJSON(t *testing.T, client *http.Client, url, token string, body any) envelope {
	t.Helper()
	return doJSON(t, client, http.MethodPut, url, token, body)
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, body any) envelope {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.StatusCode >= 400 {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	return env
}

func getJSON(t *testing.T, client *http.Client, url, token string) envelope {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.StatusCode >= 400 {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	return env
}

func getJSONStatus(t *testing.T, client *http.Client, url, token string, want int) envelope {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, string(raw))
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env
}
