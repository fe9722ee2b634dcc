package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rezoningwatch/rezoningwatch/pkg/types"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func record(id, name, state string, tags ...string) types.Record {
	r := types.Record{ID: id, Type: "projects"}
	r.Attributes.Name = name
	r.Attributes.State = state
	r.Attributes.ProjectTagList = tags
	r.Links.Self = "https://shapeyourcity.ca/" + id
	return r
}

func sampleReport() types.Report {
	prev := record("2", "Main St", "draft")
	cur := record("2", "Main St", "published")
	return types.Report{
		New: []types.Record{record("1", "Oak\nStreet", "published", "Rezoning", "Public Hearing")},
		Changed: []types.ChangedRecord{{
			Previous: prev,
			Current:  cur,
			Changes: types.ChangeSet{
				"state": {Old: "draft", New: "published"},
				"name":  {Old: "Main", New: "Main St"},
			},
		}},
	}
}

func TestSlackText(t *testing.T) {
	want := "New item: *<https://shapeyourcity.ca/1|OakStreet>*\n" +
		"• Tags: Rezoning, Public Hearing\n" +
		"• State: Published\n" +
		"\n" +
		"Changed item: *<https://shapeyourcity.ca/2|Main St>*\n" +
		"• name: 'Main' -> 'Main St'\n" +
		"• state: 'draft' -> 'published'\n" +
		"\n"
	if got := SlackText(sampleReport()); got != want {
		t.Errorf("SlackText() =\n%s\nwant\n%s", got, want)
	}
}

func TestSlackText_NoTagsOmitsTagLine(t *testing.T) {
	got := SlackText(types.Report{New: []types.Record{record("1", "Oak", "")}})
	if strings.Contains(got, "Tags") {
		t.Errorf("unexpected tag line in %q", got)
	}
	if !strings.Contains(got, "• State: \n") {
		t.Errorf("empty state should render as-is, got %q", got)
	}
}

func TestCapitalize(t *testing.T) {
	tests := map[string]string{
		"":          "",
		"  ":        "  ",
		"draft":     "Draft",
		"Published": "Published",
	}
	for in, want := range tests {
		if got := capitalize(in); got != want {
			t.Errorf("capitalize(%q) = %q, want %q", in, got, want)
		}
	}
}

type capture struct {
	mu     sync.Mutex
	bodies []map[string]any
	status int
}

func (c *capture) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		status := c.status
		c.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebhook_Payloads(t *testing.T) {
	tests := []struct {
		kind  string
		check func(t *testing.T, body map[string]any)
	}{
		{TypeSlack, func(t *testing.T, body map[string]any) {
			if body["text"] != SlackText(sampleReport()) {
				t.Errorf("text = %v", body["text"])
			}
		}},
		{TypeTeams, func(t *testing.T, body map[string]any) {
			if body["@type"] != "MessageCard" {
				t.Errorf("@type = %v", body["@type"])
			}
			if body["summary"] != "1 new, 1 changed" {
				t.Errorf("summary = %v", body["summary"])
			}
		}},
		{TypeHTTP, func(t *testing.T, body map[string]any) {
			report, ok := body["report"].(map[string]any)
			if !ok {
				t.Fatalf("report missing: %v", body)
			}
			if n := len(report["new"].([]any)); n != 1 {
				t.Errorf("new = %d, want 1", n)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			c := &capture{}
			srv := c.server(t)
			wh, err := NewWebhook(tt.kind, srv.URL, srv.Client(), quietLogger())
			if err != nil {
				t.Fatal(err)
			}
			if err := wh.Notify(context.Background(), sampleReport()); err != nil {
				t.Fatalf("Notify() error = %v", err)
			}
			if len(c.bodies) != 1 {
				t.Fatalf("posts = %d, want 1", len(c.bodies))
			}
			tt.check(t, c.bodies[0])
		})
	}
}

func TestWebhook_ErrorStatus(t *testing.T) {
	c := &capture{status: http.StatusServiceUnavailable}
	srv := c.server(t)
	wh, _ := NewWebhook(TypeSlack, srv.URL, srv.Client(), quietLogger())

	err := wh.Notify(context.Background(), sampleReport())
	if err == nil || !strings.Contains(err.Error(), "HTTP 503") {
		t.Errorf("Notify() error = %v, want HTTP 503", err)
	}
}

func TestWebhook_EmptyReportNotPosted(t *testing.T) {
	c := &capture{}
	srv := c.server(t)
	wh, _ := NewWebhook(TypeSlack, srv.URL, srv.Client(), quietLogger())

	if err := wh.Notify(context.Background(), types.Report{}); err != nil {
		t.Fatal(err)
	}
	if len(c.bodies) != 0 {
		t.Errorf("posts = %d, want 0", len(c.bodies))
	}
}

func TestNewWebhook_Validation(t *testing.T) {
	if _, err := NewWebhook("pagerduty", "http://x", nil, nil); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := NewWebhook(TypeSlack, "", nil, nil); err == nil {
		t.Error("expected error for empty url")
	}
	wh, err := NewWebhook("", "http://x", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if wh.Type != TypeSlack {
		t.Errorf("default type = %q, want slack", wh.Type)
	}
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(context.Context, types.Report) error {
	s.calls++
	return s.err
}

func TestMulti_AttemptsAllAndJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	a, b, c := &stubNotifier{err: errA}, &stubNotifier{}, &stubNotifier{err: errC}

	err := Multi{a, nil, b, c}.Notify(context.Background(), sampleReport())
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Errorf("Notify() error = %v, want both failures", err)
	}
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Errorf("calls = %d/%d/%d, want 1 each", a.calls, b.calls, c.calls)
	}
}

func TestMulti_EmptyReportSkipped(t *testing.T) {
	a := &stubNotifier{}
	if err := (Multi{a}).Notify(context.Background(), types.Report{}); err != nil {
		t.Fatal(err)
	}
	if a.calls != 0 {
		t.Errorf("calls = %d, want 0", a.calls)
	}
}

func TestLog_WritesSummary(t *testing.T) {
	var buf strings.Builder
	l := Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	if err := l.Notify(context.Background(), sampleReport()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"notify: new record", "field=state", "old=draft", "new=1 changed=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
