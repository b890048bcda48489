package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestGoalAssignmentIdempotencyKeyReplaysResponse(t *testing.T) {
	app, ts, cfg := newJourneyApp(t)
	defer app.Close()
	defer ts.Close()

	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
	salesRoleID := roleIDByName(t, client, ts.URL, token, "sales")
	userID := createUser(t, client, ts.URL, token, fmt.Sprintf("idem-%d@example.com", time.Now().UnixNano()), salesRoleID, "")

	key := fmt.Sprintf("idem-key-%d", time.Now().UnixNano())
	body := map[string]any{
		"targetSalesAmount": 5000,
		"targetCalls":       20,
		"currency":          "USD",
	}

	status, first := putGoalsWithKey(t, client, ts.URL, token, userID, key, body)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 on first assignment, got %d", status)
	}
	firstID, _ := first["id"].(string)
	if firstID == "" {
		t.Fatal("expected target id in first response")
	}

	status, replay := putGoalsWithKey(t, client, ts.URL, token, userID, key, body)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on replayed assignment, got %d", status)
	}
	if replayID, _ := replay["id"].(string); replayID != firstID {
		t.Fatalf("expected replayed response to match first target id %s, got %s", firstID, replayID)
	}

	var rowCount int
	if err := app.DB.QueryRow(context.Background(), "SELECT COUNT(1) FROM idempotency_keys WHERE key = $1", key).Scan(&rowCount); err != nil {
		t.Fatalf("failed to count idempotency rows: %v", err)
	}
	if rowCount != 1 {
		t.Fatalf("expected one stored idempotency row, got %d", rowCount)
	}
}

func TestGoalAssignmentIdempotencyKeyConflictsOnDifferentPayload(t *testing.T) {
	app, ts, cfg := newJourneyApp(t)
	defer app.Close()
	defer ts.Close()

	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
	salesRoleID := roleIDByName(t, client, ts.URL, token, "sales")
	userID := createUser(t, client, ts.URL, token, fmt.Sprintf("idem-conflict-%d@example.com", time.Now().UnixNano()), salesRoleID, "")

	key := fmt.Sprintf("conflict-key-%d", time.Now().UnixNano())
	status, _ := putGoalsWithKey(t, client, ts.URL, token, userID, key, map[string]any{"targetSalesAmount": 5000})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 on first assignment, got %d", status)
	}

	status, errBody := putGoalsWithKey(t, client, ts.URL, token, userID, key, map[string]any{"targetSalesAmount": 9999})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 when reusing key with different payload, got %d: %v", status, errBody)
	}
}

func putGoalsWithKey(t *testing.T, client *http.Client, baseURL, token, userID, key string, body map[string]any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal goals body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPut, baseURL+"/api/v1/targets/"+userID, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", key)

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
		t.Fatalf("failed to decode response %q: %v", string(rawResp), err)
	}
	if env.Data != nil {
		return resp.StatusCode, env.Data
	}
	return resp.StatusCode, env.Error
}
