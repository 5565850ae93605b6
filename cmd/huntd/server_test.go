package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/veillant/huntd/dbopen"
	"github.com/veillant/huntd/fetch"
	"github.com/veillant/huntd/hunter"
	"github.com/veillant/huntd/missions"
	"github.com/veillant/huntd/notify"
	"github.com/veillant/huntd/users"
)

func newTestServer(t *testing.T, tokenHash string) *httptest.Server {
	t.Helper()
	db := dbopen.OpenMemory(t,
		dbopen.WithSchema(missions.Schema),
		dbopen.WithSchema(users.Schema),
	)
	m := missions.NewStore(db)
	u := users.NewStore(db)
	engine := hunter.NewEngine(m, fetch.New(fetch.Config{}), nil)
	s := newServer(m, u, engine, notify.NewStdout(new(bytes.Buffer)), tokenHash, nil)
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, token string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestMissionLifecycle(t *testing.T) {
	// WHAT: Add, list, extend and remove a mission through the API.
	ts := newTestServer(t, "")
	base := ts.URL + "/api/issuers/tg42/missions"

	resp := doJSON(t, "POST", base, map[string]string{"type": "txt", "url": "https://x.example/a"}, "")
	if resp.StatusCode != 201 {
		t.Fatalf("add: got %d, want 201", resp.StatusCode)
	}
	var created hunter.Mission
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Index != 0 || created.Issuer != "tg42" {
		t.Errorf("created: got index=%d issuer=%q", created.Index, created.Issuer)
	}

	resp = doJSON(t, "POST", base+"/0/replacers", hunter.ContentReplace{Source: `v(\d+)`}, "")
	if resp.StatusCode != 200 {
		t.Fatalf("replacer: got %d, want 200", resp.StatusCode)
	}
	var extended hunter.Mission
	if err := json.NewDecoder(resp.Body).Decode(&extended); err != nil {
		t.Fatal(err)
	}
	if len(extended.ContentReplace) != 1 || extended.ContentReplace[0].Flags != "g" {
		t.Errorf("replacers: got %+v", extended.ContentReplace)
	}

	resp = doJSON(t, "GET", base, nil, "")
	var list []hunter.Mission
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("list: got %d missions, want 1", len(list))
	}

	if resp = doJSON(t, "DELETE", base+"/0", nil, ""); resp.StatusCode != 200 {
		t.Errorf("remove: got %d, want 200", resp.StatusCode)
	}
	resp = doJSON(t, "GET", base, nil, "")
	list = nil
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("list after remove: got %d missions, want 0", len(list))
	}
}

func TestAddMission_RejectsBadType(t *testing.T) {
	ts := newTestServer(t, "")
	resp := doJSON(t, "POST", ts.URL+"/api/issuers/tg1/missions",
		map[string]string{"type": "rss", "url": "https://x.example"}, "")
	if resp.StatusCode != 400 {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestRemoveMission_MissingIndex(t *testing.T) {
	ts := newTestServer(t, "")
	if resp := doJSON(t, "DELETE", ts.URL+"/api/issuers/tg1/missions/7", nil, ""); resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestCheck_EvaluatesImmediately(t *testing.T) {
	// WHAT: POST .../check runs the mission against the live target and
	// reports "unchanged" on the first run.
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer target.Close()

	ts := newTestServer(t, "")
	base := ts.URL + "/api/issuers/tg1/missions"
	doJSON(t, "POST", base, map[string]string{"type": "txt", "url": target.URL}, "")

	resp := doJSON(t, "POST", base+"/0/check", nil, "")
	if resp.StatusCode != 200 {
		t.Fatalf("check: got %d, want 200", resp.StatusCode)
	}
	var out struct {
		Status hunter.Status `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Status != hunter.StatusUnchanged {
		t.Errorf("status: got %q, want %q", out.Status, hunter.StatusUnchanged)
	}
}

func TestCheck_UnknownMission(t *testing.T) {
	ts := newTestServer(t, "")
	resp := doJSON(t, "POST", ts.URL+"/api/issuers/tg1/missions/0/check", nil, "")
	if resp.StatusCode != 200 {
		t.Fatalf("check: got %d, want 200", resp.StatusCode)
	}
	var out struct {
		Status hunter.Status `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Status != hunter.StatusSkipped {
		t.Errorf("status: got %q, want %q", out.Status, hunter.StatusSkipped)
	}
}

func TestUsers_FirstIsAdmin(t *testing.T) {
	ts := newTestServer(t, "")
	resp := doJSON(t, "POST", ts.URL+"/api/users", map[string]any{"id": "tg100"}, "")
	if resp.StatusCode != 201 {
		t.Fatalf("add: got %d, want 201", resp.StatusCode)
	}
	var u users.User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		t.Fatal(err)
	}
	if !u.Admin {
		t.Error("first user should be admin")
	}
}

func TestAuth_TokenRequired(t *testing.T) {
	// WHY: A configured token hash must gate every /api route; /healthz
	// stays open for probes.
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, string(hash))

	if resp := doJSON(t, "GET", ts.URL+"/api/issuers/tg1/missions", nil, ""); resp.StatusCode != 401 {
		t.Errorf("no token: got %d, want 401", resp.StatusCode)
	}
	if resp := doJSON(t, "GET", ts.URL+"/api/issuers/tg1/missions", nil, "wrong"); resp.StatusCode != 401 {
		t.Errorf("bad token: got %d, want 401", resp.StatusCode)
	}
	if resp := doJSON(t, "GET", ts.URL+"/api/issuers/tg1/missions", nil, "s3cret"); resp.StatusCode != 200 {
		t.Errorf("good token: got %d, want 200", resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("healthz: got %d, want 200", resp.StatusCode)
	}
}
