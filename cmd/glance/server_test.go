package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/chriskillpack/glance"
)

type stubDescriber struct {
	calls int
	desc  string
	err   error
}

func (s *stubDescriber) Name() string                   { return "stub" }
func (s *stubDescriber) Model() string                  { return "stub-model" }
func (s *stubDescriber) IsHealthy(context.Context) bool { return s.err == nil }

func (s *stubDescriber) DescribeImage(ctx context.Context, dataURL string) (string, error) {
	s.calls++
	return s.desc, s.err
}

func newTestHandler(t *testing.T, d *stubDescriber) http.Handler {
	t.Helper()

	ledger, err := glance.NewLedger(t.Context(), glance.MemoryLedger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ledger.Close)

	g := &glance.Glance{
		Describer: d,
		Requester: glance.NewRequester(d, ledger, 0),
		Ledger:    ledger,
	}
	return NewServer(g, "0", 1<<20).serveHandler()
}

func newTestServer(t *testing.T, d *stubDescriber) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(newTestHandler(t, d))
	t.Cleanup(srv.Close)
	return srv
}

func upload(t *testing.T, url, filename, contentType string, data []byte) (*http.Response, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	resp, err := http.Post(url+"/analyze", mw.FormDataContentType(), body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp, string(out)
}

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake")

func TestServeRoot(t *testing.T) {
	srv := newTestServer(t, &stubDescriber{})

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if expected, actual := http.StatusOK, resp.StatusCode; expected != actual {
		t.Errorf("Expected status %d, got %d", expected, actual)
	}
	if !strings.Contains(string(body), `accept=".png,.jpg,.jpeg,.gif"`) {
		t.Errorf("Expected the upload form to restrict file types")
	}
	if !strings.Contains(string(body), "No images analyzed yet.") {
		t.Errorf("Expected an empty history")
	}
}

func TestServeAnalyze(t *testing.T) {
	d := &stubDescriber{desc: "A photo of a cat."}
	srv := newTestServer(t, d)

	resp, body := upload(t, srv.URL, "cat.png", "image/png", pngBytes)
	if expected, actual := http.StatusOK, resp.StatusCode; expected != actual {
		t.Errorf("Expected status %d, got %d", expected, actual)
	}
	if !strings.Contains(body, "<p class=\"description\">A photo of a cat.</p>") {
		t.Errorf("Expected the description in the page, got\n%s", body)
	}
	if !strings.Contains(body, "Image information extracted!") {
		t.Errorf("Expected a success status")
	}
	if !strings.Contains(body, `src="`+glance.Image{Data: pngBytes, MIMEType: "image/png"}.DataURL()+`"`) {
		t.Errorf("Expected the analyzed image to be redisplayed from its data URL")
	}
	if expected, actual := 1, d.calls; expected != actual {
		t.Errorf("Expected %d describe calls, got %d", expected, actual)
	}
}

func TestServeAnalyzeFailure(t *testing.T) {
	d := &stubDescriber{err: errors.New("status 401 Unauthorized")}
	srv := newTestServer(t, d)

	resp, body := upload(t, srv.URL, "cat.gif", "", []byte("GIF89a"))
	if expected, actual := http.StatusOK, resp.StatusCode; expected != actual {
		t.Errorf("Expected status %d, got %d", expected, actual)
	}
	if !strings.Contains(body, "Error fetching image info: stub request failed: status 401 Unauthorized") {
		t.Errorf("Expected the failure reason in the page, got\n%s", body)
	}

	// The failure is listed in the history partial.
	hresp, err := http.Get(srv.URL + "/history")
	if err != nil {
		t.Fatal(err)
	}
	defer hresp.Body.Close()
	history, _ := io.ReadAll(hresp.Body)
	if !strings.Contains(string(history), "status 401 Unauthorized") || !strings.Contains(string(history), "image/gif") {
		t.Errorf("Expected the failed analysis in history, got\n%s", history)
	}
}

func TestServeAnalyzeRejectsUnsupported(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
	}{
		{"cat.bmp", "image/bmp"},
		{"cat.webp", ""},
		{"cat.png", "text/html"},
	}

	for _, tc := range tests {
		t.Run(tc.filename, func(t *testing.T) {
			d := &stubDescriber{desc: "unused"}
			srv := newTestServer(t, d)

			resp, body := upload(t, srv.URL, tc.filename, tc.contentType, pngBytes)
			if expected, actual := http.StatusBadRequest, resp.StatusCode; expected != actual {
				t.Errorf("Expected status %d, got %d", expected, actual)
			}
			if !strings.Contains(body, "unsupported image type") {
				t.Errorf("Expected an unsupported type message")
			}
			if expected, actual := 0, d.calls; expected != actual {
				t.Errorf("Expected %d describe calls, got %d", expected, actual)
			}
		})
	}
}

func TestServeAnalyzeNoFile(t *testing.T) {
	d := &stubDescriber{}
	srv := newTestServer(t, d)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	mw.WriteField("other", "value")
	mw.Close()

	resp, err := http.Post(srv.URL+"/analyze", mw.FormDataContentType(), body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if expected, actual := http.StatusBadRequest, resp.StatusCode; expected != actual {
		t.Errorf("Expected status %d, got %d", expected, actual)
	}
	if expected, actual := 0, d.calls; expected != actual {
		t.Errorf("Expected %d describe calls, got %d", expected, actual)
	}
}

func TestServeAnalyzeTooLarge(t *testing.T) {
	d := &stubDescriber{}
	h := newTestHandler(t, d)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("image", "big.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(bytes.Repeat([]byte{0}, 2<<20))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if expected, actual := http.StatusRequestEntityTooLarge, rec.Code; expected != actual {
		t.Errorf("Expected status %d, got %d", expected, actual)
	}
	if expected, actual := 0, d.calls; expected != actual {
		t.Errorf("Expected %d describe calls, got %d", expected, actual)
	}
}

func TestServeHealth(t *testing.T) {
	for _, tc := range []struct {
		err    error
		status int
	}{
		{nil, http.StatusOK},
		{errors.New("down"), http.StatusServiceUnavailable},
	} {
		srv := newTestServer(t, &stubDescriber{err: tc.err})
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if expected, actual := tc.status, resp.StatusCode; expected != actual {
			t.Errorf("Expected status %d, got %d", expected, actual)
		}
	}
}
