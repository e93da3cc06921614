//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("ICC_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:18080"
}

// TestAuditJourneyIntegration runs against a live server with the dynamic
// item source. The admin account comes from ICC_TEST_ADMIN_EMAIL and
// ICC_TEST_ADMIN_PASSWORD, for example created by the seed file.
func TestAuditJourneyIntegration(t *testing.T) {
	email := os.Getenv("ICC_TEST_ADMIN_EMAIL")
	password := os.Getenv("ICC_TEST_ADMIN_PASSWORD")
	if email == "" || password == "" {
		t.Skip("ICC_TEST_ADMIN_EMAIL / ICC_TEST_ADMIN_PASSWORD not set")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	base := baseURL()

	var loginResp struct {
		Token string `json:"token"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &loginResp)
	token := loginResp.Token
	if token == "" {
		t.Fatalf("login did not return token")
	}

	storeName := fmt.Sprintf("Integration %d", time.Now().UnixNano())
	var storeResp struct {
		ID string `json:"id"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/admin/stores", token, map[string]string{
		"name": storeName,
		"code": "4242",
	}, &storeResp)
	if storeResp.ID == "" {
		t.Fatalf("expected store id in response")
	}

	var itemResp struct {
		ID string `json:"id"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/admin/items", token, map[string]any{
		"title":       "Integration item",
		"description": "Checked by the integration test",
		"order":       999,
	}, &itemResp)
	if itemResp.ID == "" {
		t.Fatalf("expected item id in response")
	}
	defer doJSON(t, client, http.MethodDelete, base+"/api/admin/items/"+itemResp.ID, token, nil, nil)

	var session struct {
		ID string `json:"id"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/sessions", "", nil, &session)
	sp := base + "/api/sessions/" + session.ID

	date := time.Now().Format("2006-01-02")
	var gateResp struct {
		Gate struct {
			CanContinue bool `json:"can_continue"`
		} `json:"gate"`
	}
	doJSON(t, client, http.MethodPost, sp+"/precheck", "", map[string]string{
		"store":    storeName,
		"code":     "4242",
		"verifier": "Integration",
		"date":     date,
	}, &gateResp)
	if !gateResp.Gate.CanContinue {
		t.Fatalf("pre-check did not open the gate: %+v", gateResp)
	}

	doJSON(t, client, http.MethodPost, sp+"/start", "", nil, nil)
	var checklist struct {
		Checklist struct {
			Items []struct {
				ID string `json:"id"`
			} `json:"items"`
		} `json:"checklist"`
	}
	doJSON(t, client, http.MethodPost, sp+"/checklist", "", nil, &checklist)
	if len(checklist.Checklist.Items) == 0 {
		t.Fatalf("checklist has no items")
	}
	for _, it := range checklist.Checklist.Items {
		doJSON(t, client, http.MethodPut, sp+"/items/"+it.ID, "", map[string]string{"status": "compliant"}, nil)
	}

	var summary struct {
		Summary struct {
			Persisted bool `json:"persisted"`
		} `json:"summary"`
	}
	doJSON(t, client, http.MethodPost, sp+"/finish", "", map[string]string{"comment": "integration"}, &summary)
	if !summary.Summary.Persisted {
		t.Fatalf("audit was not persisted")
	}

	exportURL := fmt.Sprintf("%s/api/admin/audits/export?store=%s", base, storeResp.ID)
	req, err := http.NewRequest(http.MethodGet, exportURL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("export request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("export status %d body %s", resp.StatusCode, string(body))
	}
	csvData, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read export data: %v", err)
	}
	if !strings.Contains(string(csvData), storeName) {
		t.Fatalf("export csv did not contain store name; csv=%s", string(csvData))
	}
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, body any, out any) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("http %s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d for %s %s: %s", resp.StatusCode, method, url, string(bodyBytes))
	}
	if out != nil {
		decoder := json.NewDecoder(resp.Body)
		if err := decoder.Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
}
