package microsoft

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/unimail/unimail/internal/domain"
	"github.com/unimail/unimail/internal/provider"
)

// newTestAdapter points the adapter at a fake Graph server.
func newTestAdapter(t *testing.T, handler http.Handler) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := New(Config{ClientID: "id", ClientSecret: "secret"})
	a.graphBase = srv.URL
	a.http = srv.Client()
	return a, srv
}

func TestFetchMessages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me/mailFolders/inbox/messages", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer tok-1")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{
					"id":               "m1",
					"conversationId":   "c1",
					"subject":          "Status",
					"isRead":           true,
					"hasAttachments":   true,
					"receivedDateTime": "2024-06-15T10:30:00Z",
					"from": map[string]any{
						"emailAddress": map[string]any{"name": "Alice", "address": "alice@example.com"},
					},
					"toRecipients": []map[string]any{
						{"emailAddress": map[string]any{"address": "bob@example.com"}},
					},
					"body": map[string]any{"contentType": "html", "content": "<p>hi</p>"},
				},
			},
		})
	})

	a, _ := newTestAdapter(t, mux)

	msgs, err := a.FetchMessages(context.Background(), provider.Credential{AccessToken: "tok-1"}, domain.FolderInbox, 10)
	if err != nil {
		t.Fatalf("FetchMessages() error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("message count = %d, want 1", len(msgs))
	}
	m := msgs[0]
	if m.ProviderMessageID != "m1" {
		t.Errorf("ProviderMessageID = %q, want %q", m.ProviderMessageID, "m1")
	}
	if m.From.Email != "alice@example.com" {
		t.Errorf("From.Email = %q, want %q", m.From.Email, "alice@example.com")
	}
	if m.BodyHTML != "<p>hi</p>" {
		t.Errorf("BodyHTML = %q, want %q", m.BodyHTML, "<p>hi</p>")
	}
	if m.Folder != domain.FolderInbox {
		t.Errorf("Folder = %q, want %q", m.Folder, domain.FolderInbox)
	}
	if !m.HasAttachments {
		t.Error("HasAttachments = false, want true")
	}
}

func TestFetchMessages_TransportError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"InvalidAuthenticationToken"}`, http.StatusUnauthorized)
	})
	a, _ := newTestAdapter(t, mux)

	_, err := a.FetchMessages(context.Background(), provider.Credential{AccessToken: "bad"}, domain.FolderInbox, 5)
	if !errors.Is(err, domain.ErrFetch) {
		t.Errorf("error = %v, want ErrFetch", err)
	}
}

func TestMove_ResolvesFolderID(t *testing.T) {
	var movedTo string
	mux := http.NewServeMux()
	mux.HandleFunc("/me/mailFolders/archive", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "folder-abc"})
	})
	mux.HandleFunc("/me/messages/m1/move", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DestinationID string `json:"destinationId"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		movedTo = body.DestinationID
		w.WriteHeader(http.StatusCreated)
	})
	a, _ := newTestAdapter(t, mux)

	err := a.Move(context.Background(), provider.Credential{AccessToken: "tok"}, "m1", domain.FolderArchive)
	if err != nil {
		t.Fatalf("Move() error: %v", err)
	}
	if movedTo != "folder-abc" {
		t.Errorf("destinationId = %q, want %q", movedTo, "folder-abc")
	}
}

func TestSetReadStatus_Idempotent(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %q, want PATCH", r.Method)
		}
		calls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	})
	a, _ := newTestAdapter(t, mux)
	cred := provider.Credential{AccessToken: "tok"}

	for i := 0; i < 2; i++ {
		if err := a.SetReadStatus(context.Background(), cred, "m1", true); err != nil {
			t.Fatalf("SetReadStatus() call %d error: %v", i+1, err)
		}
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestSetStarred_Unsupported(t *testing.T) {
	a := New(Config{})
	err := a.SetStarred(context.Background(), provider.Credential{}, "m1", true)
	if !errors.Is(err, domain.ErrProviderUnsupported) {
		t.Errorf("error = %v, want ErrProviderUnsupported", err)
	}
}
