package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestHandleCreateRejectsBadCredentials(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/create.php", formBody(url.Values{
		"usr": {"alice"}, "pwd": {"wrong"},
	}))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.handleCreate(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", w.Code)
	}
}

func TestHandleCreateSucceedsAndReturnsShareTriple(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/create.php", formBody(url.Values{
		"usr": {"alice"}, "pwd": {"s3cret"}, "lid": {"pub:alpha"}, "dur": {"60"},
	}))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.handleCreate(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d body %q, want 200", w.Code, w.Body.String())
	}
	lines := strings.Split(strings.TrimRight(w.Body.String(), "\n"), "\n")
	if len(lines) != 4 || lines[0] != "OK" {
		t.Fatalf("got lines %v, want OK + 3 fields", lines)
	}
	if lines[3] != "pub:alpha" {
		t.Fatalf("got share_id=%q, want the raw lid echoed back", lines[3])
	}
	if !strings.Contains(lines[2], "ducktracker.example") {
		t.Fatalf("got share_link=%q, want it to contain the configured server name", lines[2])
	}
}

func TestHandleCreateRejectsMalformedShareID(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/create.php", formBody(url.Values{
		"usr": {"alice"}, "pwd": {"s3cret"}, "lid": {"pub:!!!"},
	}))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.handleCreate(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
}

func TestHandleStopAndHandlePostLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/create.php", formBody(url.Values{
		"usr": {"alice"}, "pwd": {"s3cret"}, "lid": {"pub:alpha"}, "dur": {"60"},
	}))
	createReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	createW := httptest.NewRecorder()
	srv.handleCreate(createW, createReq)
	lines := strings.Split(strings.TrimRight(createW.Body.String(), "\n"), "\n")
	sessionID := lines[1]

	postReq := httptest.NewRequest(http.MethodPost, "/api/post.php", formBody(url.Values{
		"sid": {sessionID}, "time": {"1"}, "lat": {"1.5"}, "lon": {"2.5"},
	}))
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	postW := httptest.NewRecorder()
	srv.handlePost(postW, postReq)
	if postW.Code != http.StatusOK {
		t.Fatalf("got post status %d body %q, want 200", postW.Code, postW.Body.String())
	}

	stopReq := httptest.NewRequest(http.MethodPost, "/api/stop.php", formBody(url.Values{"sid": {sessionID}}))
	stopReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	stopW := httptest.NewRecorder()
	srv.handleStop(stopW, stopReq)
	if stopW.Code != http.StatusOK || stopW.Body.String() != "OK\n" {
		t.Fatalf("got stop status=%d body=%q, want 200 OK\\n", stopW.Code, stopW.Body.String())
	}

	postAgain := httptest.NewRequest(http.MethodPost, "/api/post.php", formBody(url.Values{
		"sid": {sessionID}, "time": {"2"}, "lat": {"1"}, "lon": {"1"},
	}))
	postAgain.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	postAgainW := httptest.NewRecorder()
	srv.handlePost(postAgainW, postAgain)
	if postAgainW.Code != http.StatusNotFound {
		t.Fatalf("got status %d after stop, want 404 (session removed)", postAgainW.Code)
	}
}

func TestHandlePostUnknownSessionReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/post.php", formBody(url.Values{
		"sid": {"does-not-exist"}, "time": {"1"}, "lat": {"0"}, "lon": {"0"},
	}))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.handlePost(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}
}

func TestHandleLoginSucceedsAndFails(t *testing.T) {
	srv, _ := newTestServer(t)

	good, _ := json.Marshal(map[string]string{"username": "alice", "password": "s3cret"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(good))
	w := httptest.NewRecorder()
	srv.handleLogin(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}
	var resp loginResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Token == "" || resp.Version != "test" {
		t.Fatalf("got resp=%+v, want a nonempty token and version=test", resp)
	}

	bad, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	req2 := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(bad))
	w2 := httptest.NewRecorder()
	srv.handleLogin(w2, req2)
	if w2.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", w2.Code)
	}
}

func TestHandleCreateDefaultsDurationWhenDurOmitted(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/create.php", formBody(url.Values{
		"usr": {"alice"}, "pwd": {"s3cret"},
	}))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.handleCreate(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d body %q, want 200", w.Code, w.Body.String())
	}
}

func TestHandleCreateRejectsNonIntegerDur(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/create.php", formBody(url.Values{
		"usr": {"alice"}, "pwd": {"s3cret"}, "dur": {"soon"},
	}))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.handleCreate(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
}

func TestHandlePostRejectsMalformedLatitude(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/post.php", formBody(url.Values{
		"sid": {"x"}, "time": {"1"}, "lat": {"not-a-number"}, "lon": {"0"},
	}))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.handlePost(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
}
