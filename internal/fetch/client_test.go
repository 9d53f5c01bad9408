package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu     sync.Mutex
	alerts []string
	pages  []Page
}

func (r *recorder) Alert(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, msg)
}

func (r *recorder) OpenPage(p Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, p)
}

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchSuccess(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"result":"success"}`))
	})
	rec := &recorder{}
	c := New(WithNotifier(rec), WithLogger(zaptest.NewLogger(t)))

	out := c.Fetch(context.Background(), srv.URL)

	assert.True(t, out.OK())
	assert.Equal(t, http.StatusOK, out.Status)
	assert.JSONEq(t, `{"result":"success"}`, string(out.Body))
	assert.Empty(t, rec.alerts)
	assert.Empty(t, rec.pages)
}

func TestFetchAuthRequired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/exec", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ServiceLogin?continue=x", http.StatusFound)
	})
	mux.HandleFunc("/ServiceLogin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>Authorization needed</body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &recorder{}
	out := New(WithNotifier(rec)).Fetch(context.Background(), srv.URL+"/exec")

	assert.Equal(t, AuthRequired, out.Kind)
	assert.Equal(t, srv.URL+"/ServiceLogin?continue=x", out.RedirectURL)
	require.Len(t, rec.alerts, 1)
	assert.Contains(t, rec.alerts[0], "Authorization is required")
	require.Len(t, rec.pages, 1)
	assert.Equal(t, out.RedirectURL, rec.pages[0].URL)
}

func TestFetchHTMLPage(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})
	rec := &recorder{}
	out := New(WithNotifier(rec)).Fetch(context.Background(), srv.URL)

	assert.Equal(t, HTMLPage, out.Kind)
	require.Len(t, rec.alerts, 1)
	require.Len(t, rec.pages, 1)
	assert.Equal(t, "<html>maintenance</html>", rec.pages[0].Body)
}

func TestFetchHTTPError(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	rec := &recorder{}
	out := New(WithNotifier(rec), WithLogger(zaptest.NewLogger(t))).Fetch(context.Background(), srv.URL)

	assert.Equal(t, HTTPError, out.Kind)
	assert.Equal(t, 500, out.Status)
	require.Len(t, rec.alerts, 1)
	assert.Contains(t, rec.alerts[0], "unsupported status code - 500")
	assert.Empty(t, rec.pages)
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	rec := &recorder{}
	out := New(WithNotifier(rec), WithTimeout(20*time.Millisecond)).Fetch(context.Background(), srv.URL)

	assert.Equal(t, Timeout, out.Kind)
	require.Len(t, rec.alerts, 1)
	assert.Contains(t, rec.alerts[0], "timeout")
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := &recorder{}
	out := New(WithNotifier(rec)).Fetch(context.Background(), url)

	assert.Equal(t, NetworkError, out.Kind)
	assert.Error(t, out.Err)
	require.Len(t, rec.alerts, 1)
	assert.Contains(t, rec.alerts[0], "request error")
}

func TestTaskCancel(t *testing.T) {
	started := make(chan struct{})
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})

	rec := &recorder{}
	task := New(WithNotifier(rec)).Start(context.Background(), srv.URL)
	<-started
	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not finish after cancel")
	}
	assert.Equal(t, Canceled, task.Wait().Kind)
	assert.Empty(t, rec.alerts)
}

func TestClassify(t *testing.T) {
	json := http.Header{"Content-Type": {"application/json"}}
	html := http.Header{"Content-Type": {"text/html; charset=UTF-8"}}

	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   Kind
	}{
		{"json", 200, json, `{}`, Success},
		{"json suffix", 200, http.Header{"Content-Type": {"application/vnd.api+json"}}, `{}`, Success},
		{"empty json", 200, json, ``, EmptyResponse},
		{"auth marker", 200, html, `<a href="https://accounts.example/ServiceLogin">`, AuthRequired},
		{"plain html", 200, html, `<p>hi</p>`, HTMLPage},
		{"other type", 200, http.Header{"Content-Type": {"text/plain"}}, `x`, HTMLPage},
		{"not found", 404, json, `{}`, HTTPError},
		{"redirect status", 302, html, ``, HTTPError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Classify(tt.status, tt.header, []byte(tt.body), "https://final", DefaultAuthMarkers)
			assert.Equal(t, tt.want, out.Kind)
			if tt.want == AuthRequired {
				assert.Equal(t, "https://final", out.RedirectURL)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "timeout", Timeout.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestClientTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, New().Timeout())
	assert.Equal(t, DefaultTimeout, New(WithTimeout(0)).Timeout())
	assert.Equal(t, 3*time.Second, New(WithTimeout(3*time.Second)).Timeout())
}
