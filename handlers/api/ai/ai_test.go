package ai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newUpstream(t *testing.T, status int, reply string) (*httptest.Server, *ChatCompletionRequest) {
	t.Helper()
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding upstream request: %v", err)
		}
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v2/generate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandleGenerate_Success(t *testing.T) {
	upstream, got := newUpstream(t, http.StatusOK,
		`{"id":"c1","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"Bonjour"}}]}`)
	client := NewClient("test-key", upstream.URL+"/", "default-model", time.Second)

	rec := post(HandleGenerate(client), `{"prompt":"Translate hello","system":"You translate."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp GenerateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Text != "Bonjour" {
		t.Errorf("Text = %q, want Bonjour", resp.Text)
	}

	if got.Model != "default-model" {
		t.Errorf("upstream model = %q, want the configured default", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Translate hello" {
		t.Errorf("upstream messages = %+v", got.Messages)
	}
}

func TestHandleGenerate_ModelOverride(t *testing.T) {
	upstream, got := newUpstream(t, http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`)
	client := NewClient("test-key", upstream.URL, "default-model", time.Second)

	post(HandleGenerate(client), `{"prompt":"x","model":"other"}`)
	if got.Model != "other" {
		t.Errorf("upstream model = %q, want other", got.Model)
	}
}

func TestHandleGenerate_NotConfigured(t *testing.T) {
	client := NewClient("", "http://unused", "m", time.Second)

	rec := post(HandleGenerate(client), `{"prompt":"x"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleGenerate_BadRequest(t *testing.T) {
	client := NewClient("test-key", "http://unused", "m", time.Second)

	for _, body := range []string{`not json`, `{"prompt":"  "}`} {
		rec := post(HandleGenerate(client), body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestHandleGenerate_UpstreamError(t *testing.T) {
	upstream, _ := newUpstream(t, http.StatusTooManyRequests, `{"error":"rate limited"}`)
	client := NewClient("test-key", upstream.URL, "m", time.Second)

	rec := post(HandleGenerate(client), `{"prompt":"x"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestHandleGenerate_NoChoices(t *testing.T) {
	upstream, _ := newUpstream(t, http.StatusOK, `{"choices":[]}`)
	client := NewClient("test-key", upstream.URL, "m", time.Second)

	rec := post(HandleGenerate(client), `{"prompt":"x"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}
