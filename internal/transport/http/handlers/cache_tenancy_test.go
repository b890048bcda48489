package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"crm/internal/app/server"
	"crm/internal/domain/auth"
	"crm/internal/platform/config"
)

// A token signed for a different tenant must never be served another tenant's
// record out of the read cache, even when the record was cached moments
// earlier under the same user id.
func TestTargetReadCacheIsTenantScoped(t *testing.T) {
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
		// Long enough that a cached entry is guaranteed to still be live when
		// the cross-tenant read arrives.
		TargetCacheTTL: time.Minute,
		MetricsEnabled: false,
	}

	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	defer app.Close()
	ts := httptest.NewServer(app.Router)
	defer ts.Close()

	client := ts.Client()
	token := login(t, client, ts.URL, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
	salesRoleID := roleIDByName(t, client, ts.URL, token, "sales")
	adminRoleID := roleIDByName(t, client, ts.URL, token, "admin")

	userID := createUser(t, client, ts.URL, token, fmt.Sprintf("cache-%d@example.com", time.Now().UnixNano()), salesRoleID, "")
	setGoals(t, client, ts.URL, token, userID, map[string]any{"targetSalesAmount": 500})

	// Prime the cache with the owning tenant's record.
	record := getTarget(t, client, ts.URL, token, userID)
	if record["id"] == "" {
		t.Fatal("expected target id")
	}

	foreignToken, err := auth.GenerateToken(cfg.JWTSecret, auth.Claims{
		UserID:   "11111111-1111-1111-1111-111111111111",
		TenantID: "22222222-2222-2222-2222-222222222222",
		RoleID:   adminRoleID,
		RoleName: auth.RoleAdmin,
	}, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	getJSONStatus(t, client, ts.URL+"/api/v1/targets/"+userID, foreignToken, http.StatusNotFound)
}
