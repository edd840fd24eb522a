package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signflow/agreement"
	"signflow/auth"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAgreements struct {
	createResult     agreement.Agreement
	createErr        error
	gotCreateActor   agreement.Actor
	gotCreateParams  agreement.CreateParams
	transitionResult agreement.Agreement
	transitionErr    error
	gotTarget        agreement.Status
	getResult        agreement.Agreement
	getErr           error
	listResult       []agreement.Agreement
	listErr          error
	auditResult      []agreement.EnrichedAuditEntry
	auditErr         error
}

func (s *stubAgreements) Create(_ context.Context, actor agreement.Actor, params agreement.CreateParams) (agreement.Agreement, error) {
	s.gotCreateActor = actor
	s.gotCreateParams = params
	return s.createResult, s.createErr
}

func (s *stubAgreements) RequestTransition(_ context.Context, _ agreement.Actor, _ int64, target agreement.Status) (agreement.Agreement, error) {
	s.gotTarget = target
	return s.transitionResult, s.transitionErr
}

func (s *stubAgreements) Get(_ context.Context, _ agreement.Actor, _ int64) (agreement.Agreement, error) {
	return s.getResult, s.getErr
}

func (s *stubAgreements) ListForUser(_ context.Context, _ agreement.Actor) ([]agreement.Agreement, error) {
	return s.listResult, s.listErr
}

func (s *stubAgreements) AuditTrail(_ context.Context, _ int64) ([]agreement.EnrichedAuditEntry, error) {
	return s.auditResult, s.auditErr
}

type stubAuth struct {
	identity       auth.Identity
	verifyErr      error
	registerResult auth.LoginResult
	registerErr    error
	loginResult    auth.LoginResult
	loginErr       error
	user           *auth.User
	userErr        error
}

func (s *stubAuth) Register(context.Context, auth.RegisterRequest) (auth.LoginResult, error) {
	return s.registerResult, s.registerErr
}

func (s *stubAuth) Login(context.Context, auth.LoginRequest) (auth.LoginResult, error) {
	return s.loginResult, s.loginErr
}

func (s *stubAuth) GetUserByID(context.Context, string) (*auth.User, error) {
	return s.user, s.userErr
}

func (s *stubAuth) VerifyToken(string) (auth.Identity, error) {
	return s.identity, s.verifyErr
}

type stubUploads struct {
	locator   string
	saveErr   error
	savedName string
	saved     []byte
}

func (s *stubUploads) Save(originalName string, r io.Reader) (string, error) {
	s.savedName = originalName
	s.saved, _ = io.ReadAll(r)
	return s.locator, s.saveErr
}

func (s *stubUploads) Dir() string { return "uploads" }

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestServer(agreements *stubAgreements, authSvc *stubAuth, uploads *stubUploads) *Server {
	if authSvc == nil {
		authSvc = &stubAuth{identity: auth.Identity{UserID: "user-a", Email: "a@x.com"}}
	}
	if uploads == nil {
		uploads = &stubUploads{locator: "/uploads/1-doc.pdf"}
	}
	return NewServer(testLogger(), agreements, authSvc, uploads)
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	server := newTestServer(&stubAgreements{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/agreements", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/agreements", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec = httptest.NewRecorder()
	newTestServer(&stubAgreements{}, &stubAuth{verifyErr: errors.New("expired")}, nil).Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for rejected token, got %d", rec.Code)
	}
}

func TestHandleListAgreements_Success(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	signerEmail := "b@x.com"
	agreements := &stubAgreements{
		listResult: []agreement.Agreement{
			{ID: 2, Title: "MSA", FileURL: "/uploads/2-msa.pdf", Status: agreement.StatusSent, SenderID: "user-a", SignerEmail: &signerEmail, CreatedAt: now, UpdatedAt: now},
			{ID: 1, Title: "NDA", FileURL: "/uploads/1-nda.pdf", Status: agreement.StatusDraft, SenderID: "user-a", CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour)},
		},
	}
	server := newTestServer(agreements, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/agreements", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var payload []agreementResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload) != 2 || payload[0].ID != 2 || payload[0].Status != "Sent" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload[0].SignerEmail == nil || *payload[0].SignerEmail != "b@x.com" {
		t.Fatalf("expected signerEmail on wire, got %+v", payload[0])
	}
	if payload[1].SignerID != nil {
		t.Fatalf("expected null signerId for unbound agreement, got %+v", payload[1])
	}
}

func TestHandleCreateAgreement_MultipartUpload(t *testing.T) {
	agreements := &stubAgreements{
		createResult: agreement.Agreement{ID: 7, Title: "NDA", FileURL: "/uploads/7-nda.pdf", Status: agreement.StatusDraft, SenderID: "user-a"},
	}
	uploads := &stubUploads{locator: "/uploads/7-nda.pdf"}
	server := newTestServer(agreements, nil, uploads)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("title", "NDA")
	_ = writer.WriteField("signerEmail", "b@x.com")
	part, _ := writer.CreateFormFile("file", "nda.pdf")
	_, _ = part.Write([]byte("%PDF-1.7 fake"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/agreements", &body)
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if uploads.savedName != "nda.pdf" || string(uploads.saved) != "%PDF-1.7 fake" {
		t.Fatalf("expected uploaded bytes stored, got %q/%q", uploads.savedName, uploads.saved)
	}
	if agreements.gotCreateParams.FileURL != "/uploads/7-nda.pdf" {
		t.Fatalf("expected store locator passed to engine, got %q", agreements.gotCreateParams.FileURL)
	}
	if agreements.gotCreateParams.Title != "NDA" || agreements.gotCreateParams.SignerEmail != "b@x.com" {
		t.Fatalf("unexpected create params: %+v", agreements.gotCreateParams)
	}
	if agreements.gotCreateActor.ID != "user-a" {
		t.Fatalf("expected actor from token, got %+v", agreements.gotCreateActor)
	}
}

func TestHandleCreateAgreement_MissingFile(t *testing.T) {
	server := newTestServer(&stubAgreements{}, nil, nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("title", "NDA")
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/agreements", &body)
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"field":"file"`) {
		t.Fatalf("expected field in error payload, got %s", rec.Body.String())
	}
}

func TestHandleCreateAgreement_ValidationError(t *testing.T) {
	agreements := &stubAgreements{
		createErr: &agreement.ValidationError{Field: "title", Message: "title is required"},
	}
	server := newTestServer(agreements, nil, nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", "nda.pdf")
	_, _ = part.Write([]byte("x"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/agreements", &body)
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"field":"title"`) {
		t.Fatalf("expected title field in payload, got %s", rec.Body.String())
	}
}

func TestHandleUpdateStatus_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", agreement.ErrNotFound, http.StatusNotFound},
		{"sender only", agreement.ErrSenderOnly, http.StatusUnauthorized},
		{"signer only", agreement.ErrSignerOnly, http.StatusUnauthorized},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := newTestServer(&stubAgreements{transitionErr: tc.err}, nil, nil)

			req := httptest.NewRequest(http.MethodPatch, "/api/agreements/1/status", strings.NewReader(`{"status":"Sent"}`))
			req.Header.Set("Authorization", "Bearer token")
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			server.Router().ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d (%s)", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleUpdateStatus_PassesTarget(t *testing.T) {
	agreements := &stubAgreements{
		transitionResult: agreement.Agreement{ID: 1, Status: agreement.StatusSent, SenderID: "user-a"},
	}
	server := newTestServer(agreements, nil, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/agreements/1/status", strings.NewReader(`{"status":"Sent"}`))
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if agreements.gotTarget != agreement.StatusSent {
		t.Fatalf("expected target Sent, got %q", agreements.gotTarget)
	}
}

func TestHandleGetAgreement_BadID(t *testing.T) {
	server := newTestServer(&stubAgreements{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/agreements/abc", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-numeric id, got %d", rec.Code)
	}
}

func TestHandleAuditTrail_Success(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agreements := &stubAgreements{
		auditResult: []agreement.EnrichedAuditEntry{
			{
				AuditEntry: agreement.AuditEntry{ID: 3, AgreementID: 1, Action: agreement.ActionSigned, PerformedBy: "user-b", CreatedAt: now},
				Performer:  agreement.Performer{FirstName: "Bob", LastName: "Barnes", Email: "b@x.com"},
			},
			{
				AuditEntry: agreement.AuditEntry{ID: 1, AgreementID: 1, Action: agreement.ActionCreated, PerformedBy: "ghost", CreatedAt: now.Add(-time.Hour)},
				Performer:  agreement.Performer{FirstName: "Unknown"},
			},
		},
	}
	server := newTestServer(agreements, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/agreements/1/audit", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload []auditEntryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload) != 2 || payload[0].Action != "Signed" || payload[0].User.FirstName != "Bob" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload[1].User.FirstName != "Unknown" || payload[1].User.Email != "" {
		t.Fatalf("expected placeholder performer, got %+v", payload[1].User)
	}
}

func TestHandleLogin(t *testing.T) {
	authSvc := &stubAuth{
		loginResult: auth.LoginResult{
			Token: "jwt-token",
			User:  auth.User{ID: "user-a", Email: "a@x.com", FirstName: "Alice"},
		},
	}
	server := newTestServer(&stubAgreements{}, authSvc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@x.com","password":"strongpassword"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Token != "jwt-token" || payload.User.Email != "a@x.com" {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	authSvc.loginErr = auth.ErrInvalidCredentials
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@x.com","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", rec.Code)
	}
}

func TestHandleRegister_DuplicateEmail(t *testing.T) {
	server := newTestServer(&stubAgreements{}, &stubAuth{registerErr: auth.ErrDuplicateEmail}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"email":"a@x.com","password":"strongpassword","firstName":"Alice"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
