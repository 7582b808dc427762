package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	sharederrors "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/errors"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/events"
	"github.com/sammy-9930/Microservice-Based-Order-And-User-Management/user-service/internal/user"
)

type recordingPublisher struct {
	published []events.UpdateFields
}

func (p *recordingPublisher) PublishUserChanged(_ context.Context, _ string, fields events.UpdateFields) {
	p.published = append(p.published, fields)
}

const validUser = `{"firstName":"Ada","emails":["ada@example.com"],"deliveryAddress":{"street":"1 Main St","city":"Halifax","province":"NS","postalCode":"B3H 1A1","country":"CA"}}`

func newTestRouter(t *testing.T) (http.Handler, *recordingPublisher) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := &recordingPublisher{}
	svc := user.NewService(user.NewMemoryRepository(), pub, user.VersionV2, logger)

	r := chi.NewRouter()
	RegisterRoutes(r, svc, logger)
	return r, pub
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func mustCreateUser(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/users", validUser)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string    `json:"status"`
		User   user.User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if resp.Status != "success" || resp.User.UserID == "" {
		t.Fatalf("unexpected create response %+v", resp)
	}
	return resp.User.UserID
}

func TestCreateAndGetUser(t *testing.T) {
	h, _ := newTestRouter(t)
	id := mustCreateUser(t, h)

	rec := do(t, h, http.MethodGet, "/users/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/users/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateDuplicateEmailConflict(t *testing.T) {
	h, _ := newTestRouter(t)
	mustCreateUser(t, h)

	rec := do(t, h, http.MethodPost, "/users", validUser)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body sharederrors.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Field != "emails" {
		t.Fatalf("unexpected error body %s", rec.Body.String())
	}
}

func TestUpdateUserPublishesChangedFields(t *testing.T) {
	h, pub := newTestRouter(t)
	id := mustCreateUser(t, h)

	rec := do(t, h, http.MethodPut, "/users/"+id, `{"emails":["ada@new.example.com"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status string    `json:"status"`
		Before user.User `json:"before"`
		After  user.User `json:"after"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Before.Emails[0] != "ada@example.com" || resp.After.Emails[0] != "ada@new.example.com" {
		t.Fatalf("unexpected before/after %+v", resp)
	}
	if len(pub.published) != 1 || !pub.published[0].Emails.Set || pub.published[0].DeliveryAddress.Set {
		t.Fatalf("unexpected published fields %+v", pub.published)
	}
}

func TestUpdateUserRejections(t *testing.T) {
	h, pub := newTestRouter(t)
	id := mustCreateUser(t, h)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{name: "unknown field", path: "/users/" + id, body: `{"firstName":"Bob"}`, wantStatus: http.StatusBadRequest, wantMsg: "Invalid field: firstName"},
		{name: "no fields", path: "/users/" + id, body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "empty emails", path: "/users/" + id, body: `{"emails":[]}`, wantStatus: http.StatusBadRequest},
		{name: "null address", path: "/users/" + id, body: `{"deliveryAddress":null}`, wantStatus: http.StatusBadRequest},
		{name: "bad email syntax", path: "/users/" + id, body: `{"emails":["nope"]}`, wantStatus: http.StatusBadRequest},
		{name: "missing user", path: "/users/missing", body: `{"emails":["x@example.com"]}`, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPut, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantMsg != "" {
				var body sharederrors.ErrorResponse
				_ = json.Unmarshal(rec.Body.Bytes(), &body)
				if body.Message != tt.wantMsg {
					t.Fatalf("expected message %q, got %q", tt.wantMsg, body.Message)
				}
			}
		})
	}

	if len(pub.published) != 0 {
		t.Fatalf("rejected updates must not publish, got %d", len(pub.published))
	}
}
