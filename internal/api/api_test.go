package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/bulk-tickets/internal/bulk"
	"github.com/yourorg/bulk-tickets/internal/clock"
	"github.com/yourorg/bulk-tickets/internal/helpdesk"
	"github.com/yourorg/bulk-tickets/internal/sheet"
	"github.com/yourorg/bulk-tickets/internal/storage"
	"github.com/yourorg/bulk-tickets/internal/throttle"
	"github.com/yourorg/bulk-tickets/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSubmitter struct {
	emails []string
}

func (f *fakeSubmitter) CreateTicket(_ context.Context, email, _, _ string, _ map[string]any) (int64, error) {
	f.emails = append(f.emails, email)
	return int64(500 + len(f.emails)), nil
}

type runnerFunc func(ctx context.Context, req types.BatchRequest) (*types.BatchReport, error)

func (f runnerFunc) Run(ctx context.Context, req types.BatchRequest) (*types.BatchReport, error) {
	return f(ctx, req)
}

type fakeDiagnostics struct {
	check     helpdesk.AuthCheck
	fields    []helpdesk.TicketField
	fieldsErr error
	calls     int
}

func (f *fakeDiagnostics) VerifyAuth(context.Context) helpdesk.AuthCheck {
	f.calls++
	return f.check
}

func (f *fakeDiagnostics) TicketFields(context.Context) ([]helpdesk.TicketField, error) {
	f.calls++
	return f.fields, f.fieldsErr
}

func newBulk(sub bulk.Submitter) *bulk.Service {
	return bulk.New(bulk.Config{
		Submitter: sub,
		Limiter:   throttle.NewGate(0, clock.Real()),
		Logger:    zap.NewNop(),
	})
}

// multipartBody builds a /send-bulk form. A nil file omits the file part.
func multipartBody(t *testing.T, filename string, file []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if file != nil {
		fw, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(file)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf, w.FormDataContentType()
}

func postSendBulk(t *testing.T, r http.Handler, filename string, file []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, filename, file, fields)
	req := httptest.NewRequest(http.MethodPost, "/send-bulk", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func templates() map[string]string {
	return map[string]string{"subject_template": "Hi {name}", "body_template": "Dear {name}"}
}

func TestSendBulkReport(t *testing.T) {
	sub := &fakeSubmitter{}
	r := NewRouter(RouterConfig{Runner: newBulk(sub), Helpdesk: &fakeDiagnostics{}})

	w := postSendBulk(t, r, "people.csv", []byte("email,name\na@x.com,Alice\n,Bob\n"), templates())
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var report types.BatchReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Total != 2 || len(report.Results) != 2 || report.BatchID == "" {
		t.Fatalf("report=%+v", report)
	}
	if report.Results[0].Status != types.StatusSent || *report.Results[0].TicketID != 501 {
		t.Fatalf("first=%+v", report.Results[0])
	}
	if report.Results[1].Status != types.StatusSkipped || report.Results[1].Reason != "no email" {
		t.Fatalf("second=%+v", report.Results[1])
	}
	if len(sub.emails) != 1 || sub.emails[0] != "a@x.com" {
		t.Fatalf("sent to %v", sub.emails)
	}
}

func TestSendBulkColumnNotFound(t *testing.T) {
	sub := &fakeSubmitter{}
	r := NewRouter(RouterConfig{Runner: newBulk(sub), Helpdesk: &fakeDiagnostics{}})

	fields := templates()
	fields["email_column"] = "mail"
	w := postSendBulk(t, r, "people.csv", []byte("email,name\na@x.com,Alice\n"), fields)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	var body struct {
		Error            string   `json:"error"`
		AvailableColumns []string `json:"available_columns"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(body.Error, "'mail'") || len(body.AvailableColumns) != 2 || body.AvailableColumns[1] != "name" {
		t.Fatalf("body=%+v", body)
	}
	if len(sub.emails) != 0 {
		t.Fatalf("remote calls made")
	}
}

func TestSendBulkRequestValidation(t *testing.T) {
	r := NewRouter(RouterConfig{Runner: newBulk(&fakeSubmitter{}), Helpdesk: &fakeDiagnostics{}})

	if w := postSendBulk(t, r, "people.csv", []byte("email\n"), map[string]string{"subject_template": "s"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing body_template: status=%d", w.Code)
	}
	if w := postSendBulk(t, r, "", nil, templates()); w.Code != http.StatusBadRequest {
		t.Fatalf("missing file: status=%d", w.Code)
	}
	w := postSendBulk(t, r, "people.pdf", []byte("%PDF"), templates())
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Unsupported file type") {
		t.Fatalf("unsupported: status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestSendBulkErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid key", bulk.ErrInvalidAPIKey, http.StatusServiceUnavailable},
		{"malformed", sheet.ErrMalformedInput, http.StatusBadRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := runnerFunc(func(context.Context, types.BatchRequest) (*types.BatchReport, error) {
				return nil, tc.err
			})
			r := NewRouter(RouterConfig{Runner: runner, Helpdesk: &fakeDiagnostics{}})
			if w := postSendBulk(t, r, "a.csv", []byte("email\n"), templates()); w.Code != tc.want {
				t.Fatalf("status=%d; want %d", w.Code, tc.want)
			}
		})
	}
}

func TestSendBulkPassesForm(t *testing.T) {
	var got types.BatchRequest
	runner := runnerFunc(func(_ context.Context, req types.BatchRequest) (*types.BatchReport, error) {
		got = req
		return &types.BatchReport{BatchID: "b", Results: []types.RowResult{}}, nil
	})
	r := NewRouter(RouterConfig{Runner: runner, Helpdesk: &fakeDiagnostics{}})

	fields := templates()
	fields["email_column"] = "Email Address"
	fields["disposition"] = "Billing"
	fields["custom_fields"] = `{"cf_region":"EU"}`
	if w := postSendBulk(t, r, "list.xlsx", []byte("zip"), fields); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if got.Filename != "list.xlsx" || string(got.File) != "zip" || got.EmailColumn != "Email Address" ||
		got.Disposition != "Billing" || got.ExtraFieldsJSON != `{"cf_region":"EU"}` || got.SubjectTemplate != "Hi {name}" {
		t.Fatalf("request=%+v", got)
	}
}

func TestSendBulkUploadLimit(t *testing.T) {
	r := NewRouter(RouterConfig{Runner: newBulk(&fakeSubmitter{}), Helpdesk: &fakeDiagnostics{}, MaxUploadBytes: 256})
	big := bytes.Repeat([]byte("a"), 4096)
	if w := postSendBulk(t, r, "people.csv", big, templates()); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestSendBulkArchives(t *testing.T) {
	dir := t.TempDir()
	archiver := NewArchiver(storage.New(nil), "file://"+dir, zap.NewNop())
	r := NewRouter(RouterConfig{Runner: newBulk(&fakeSubmitter{}), Helpdesk: &fakeDiagnostics{}, Archiver: archiver})

	input := []byte("email,name\na@x.com,Alice\n")
	w := postSendBulk(t, r, "people.csv", input, templates())
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var report types.BatchReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}

	stored, err := os.ReadFile(filepath.Join(dir, report.BatchID, "people.csv"))
	if err != nil || !bytes.Equal(stored, input) {
		t.Fatalf("archived input=%q err=%v", stored, err)
	}
	b, err := os.ReadFile(filepath.Join(dir, report.BatchID, "report.json"))
	if err != nil {
		t.Fatalf("archived report: %v", err)
	}
	var archived types.BatchReport
	if err := json.Unmarshal(b, &archived); err != nil || archived.BatchID != report.BatchID || archived.Total != 1 {
		t.Fatalf("archived=%+v err=%v", archived, err)
	}
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthAndReady(t *testing.T) {
	r := NewRouter(RouterConfig{Runner: newBulk(&fakeSubmitter{}), Helpdesk: &fakeDiagnostics{}})
	if w := get(r, "/health"); w.Code != http.StatusOK {
		t.Fatalf("health=%d", w.Code)
	}
	if w := get(r, "/ready"); w.Code != http.StatusOK {
		t.Fatalf("ready=%d", w.Code)
	}

	bad := NewRouter(RouterConfig{Runner: newBulk(&fakeSubmitter{}), Helpdesk: &fakeDiagnostics{}, ConfigErr: errors.New("no key")})
	if w := get(bad, "/health"); w.Code != http.StatusOK {
		t.Fatalf("health with bad config=%d", w.Code)
	}
	if w := get(bad, "/ready"); w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "no key") {
		t.Fatalf("ready with bad config=%d %s", w.Code, w.Body.String())
	}
}

func TestAuthTest(t *testing.T) {
	d := &fakeDiagnostics{check: helpdesk.AuthCheck{OK: true, StatusCode: 200, AccountName: "Acme"}}
	r := NewRouter(RouterConfig{Runner: newBulk(&fakeSubmitter{}), Helpdesk: d})

	w := get(r, "/freshdesk-test")
	var check helpdesk.AuthCheck
	if err := json.Unmarshal(w.Body.Bytes(), &check); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK || !check.OK || check.AccountName != "Acme" {
		t.Fatalf("status=%d check=%+v", w.Code, check)
	}

	d = &fakeDiagnostics{}
	r = NewRouter(RouterConfig{Runner: newBulk(&fakeSubmitter{}), Helpdesk: d, ConfigErr: errors.New("no key")})
	w = get(r, "/freshdesk-test")
	if err := json.Unmarshal(w.Body.Bytes(), &check); err != nil {
		t.Fatal(err)
	}
	if check.OK || check.Error != "no key" || d.calls != 0 {
		t.Fatalf("check=%+v calls=%d", check, d.calls)
	}
}

func TestTicketFields(t *testing.T) {
	d := &fakeDiagnostics{fields: []helpdesk.TicketField{{Name: "cf_choose_your_inquiry", Label: "Inquiry", Type: "custom_dropdown"}}}
	r := NewRouter(RouterConfig{Runner: newBulk(&fakeSubmitter{}), Helpdesk: d})
	w := get(r, "/ticket-fields")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "cf_choose_your_inquiry") {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	d.fieldsErr = &helpdesk.RemoteError{StatusCode: 500, Body: "down"}
	if w := get(r, "/ticket-fields"); w.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", w.Code)
	}
}
