package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"medichat/internal/models"
)

// fakeTableAPI emulates the subset of a PostgREST table API used by RESTStore.
type fakeTableAPI struct {
	mu       sync.Mutex
	uuidKeys bool
	nextID   int64
	sessions []map[string]any
	messages []map[string]any
	prefers  []string
	apikeys  []string
	orders   []string
}

func (f *fakeTableAPI) newKey() any {
	f.nextID++
	if f.uuidKeys {
		return fmt.Sprintf("6f1c2a9e-3b7d-4c1e-9a2f-%012d", f.nextID)
	}
	return f.nextID
}

func (f *fakeTableAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apikeys = append(f.apikeys, r.Header.Get("apikey"))

	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	switch r.Method {
	case http.MethodPost:
		f.prefers = append(f.prefers, r.Header.Get("Prefer"))
		var row map[string]any
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "bad json"})
			return
		}
		row["id"] = f.newKey()
		row["created_at"] = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(time.RFC3339Nano)
		switch table {
		case "chat_sessions":
			f.sessions = append(f.sessions, row)
		case "chat_messages":
			if row["content"] == "reject" {
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": "violates foreign key constraint"})
				return
			}
			f.messages = append(f.messages, row)
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode([]map[string]any{row})
	case http.MethodGet:
		want := r.URL.Query().Get("session_id")
		f.orders = append(f.orders, r.URL.Query().Get("order"))
		out := make([]map[string]any, 0)
		for _, m := range f.messages {
			if fmt.Sprintf("eq.%v", m["session_id"]) == want {
				out = append(out, m)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

func TestRESTStoreRoundTrip(t *testing.T) {
	api := &fakeTableAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	st, err := NewRESTStore(RESTConfig{BaseURL: srv.URL + "/", APIKey: "anon-key"})
	if err != nil {
		t.Fatalf("NewRESTStore error: %v", err)
	}
	ctx := context.Background()

	session, err := st.CreateSession(ctx, "Medical Consultation")
	if err != nil {
		t.Fatalf("CreateSession error: %v", err)
	}
	if session.ID != "1" || session.Title != "Medical Consultation" || session.CreatedAt.IsZero() {
		t.Fatalf("unexpected session: %#v", session)
	}

	msg, err := st.InsertMessage(ctx, session.ID, models.RoleUser, "What helps a headache?")
	if err != nil {
		t.Fatalf("InsertMessage error: %v", err)
	}
	if msg.ID != "2" || msg.SessionID != session.ID || msg.Role != models.RoleUser || msg.CreatedAt.IsZero() {
		t.Fatalf("unexpected message: %#v", msg)
	}

	messages, err := st.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMessages error: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "What helps a headache?" {
		t.Fatalf("unexpected transcript: %#v", messages)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	for _, p := range api.prefers {
		if p != "return=representation" {
			t.Fatalf("insert without return=representation: %q", p)
		}
	}
	for _, k := range api.apikeys {
		if k != "anon-key" {
			t.Fatalf("request without apikey header: %q", k)
		}
	}
}

func TestRESTStoreUUIDKeys(t *testing.T) {
	api := &fakeTableAPI{uuidKeys: true}
	srv := httptest.NewServer(api)
	defer srv.Close()

	st, err := NewRESTStore(RESTConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewRESTStore error: %v", err)
	}
	ctx := context.Background()

	session, err := st.CreateSession(ctx, "Medical Consultation")
	if err != nil {
		t.Fatalf("CreateSession error: %v", err)
	}
	if session.ID != "6f1c2a9e-3b7d-4c1e-9a2f-000000000001" {
		t.Fatalf("unexpected session id %q", session.ID)
	}
	for _, content := range []string{"Hello!", "I have a fever"} {
		msg, err := st.InsertMessage(ctx, session.ID, models.RoleUser, content)
		if err != nil {
			t.Fatalf("InsertMessage error: %v", err)
		}
		if msg.SessionID != session.ID || !strings.HasPrefix(msg.ID, "6f1c2a9e-") {
			t.Fatalf("unexpected message: %#v", msg)
		}
	}

	messages, err := st.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMessages error: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "Hello!" || messages[1].Content != "I have a fever" {
		t.Fatalf("unexpected transcript: %#v", messages)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if got := api.messages[0]["session_id"]; got != session.ID {
		t.Fatalf("session_id sent as %#v", got)
	}
	if len(api.orders) != 1 || api.orders[0] != "created_at.asc,id.asc" {
		t.Fatalf("unexpected order %v", api.orders)
	}
}

func TestRESTIDEncoding(t *testing.T) {
	cases := []struct {
		in   string
		id   restID
		back string
	}{
		{in: `42`, id: "42", back: `42`},
		{in: `"42"`, id: "42", back: `42`},
		{in: `"0a7b"`, id: "0a7b", back: `"0a7b"`},
		{in: `"007"`, id: "007", back: `"007"`},
		{in: `null`, id: "", back: `""`},
	}
	for _, tc := range cases {
		var id restID
		if err := json.Unmarshal([]byte(tc.in), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if id != tc.id {
			t.Fatalf("unmarshal %s: got %q", tc.in, id)
		}
		out, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("marshal %q: %v", id, err)
		}
		if string(out) != tc.back {
			t.Fatalf("marshal %q: got %s want %s", id, out, tc.back)
		}
	}
	var id restID
	if err := json.Unmarshal([]byte(`true`), &id); err == nil {
		t.Fatalf("expected error for boolean id")
	}
}

func TestNewRESTStoreTimeout(t *testing.T) {
	st, err := NewRESTStore(RESTConfig{BaseURL: "https://example.test"})
	if err != nil {
		t.Fatalf("NewRESTStore error: %v", err)
	}
	if st.client.Timeout != 0 {
		t.Fatalf("expected no default timeout, got %v", st.client.Timeout)
	}
	st, err = NewRESTStore(RESTConfig{BaseURL: "https://example.test", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewRESTStore error: %v", err)
	}
	if st.client.Timeout != 5*time.Second {
		t.Fatalf("unexpected timeout %v", st.client.Timeout)
	}
}

func TestRESTStoreSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(&fakeTableAPI{})
	defer srv.Close()

	st, err := NewRESTStore(RESTConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewRESTStore error: %v", err)
	}
	_, err = st.InsertMessage(context.Background(), "9", models.RoleUser, "reject")
	if err == nil || !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "foreign key") {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestNewRESTStoreRequiresURL(t *testing.T) {
	if _, err := NewRESTStore(RESTConfig{}); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}
