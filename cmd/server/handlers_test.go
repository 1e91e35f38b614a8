package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/amoffat/sifter/pkg/sifter"
)

// stubService implements sifter.Service for handler tests.
type stubService struct {
	mu       sync.Mutex
	designs  map[int]sifter.Design
	matchErr error
	block    chan struct{}
	entered  chan struct{}
	gotPath  string
	gotBytes []byte
}

func newStubService() *stubService {
	return &stubService{designs: map[int]sifter.Design{
		7:    {ID: 7, Title: "Robots", Artist: "Sam"},
		1234: {ID: 1234, Title: "Sunset Bears", Artist: "Jane Doe", Width: 400, Height: 300},
	}}
}

func (s *stubService) LoadCatalog(string) (int, error) { return 0, nil }

func (s *stubService) IndexDesign(context.Context, string) (int, error) { return 0, nil }

func (s *stubService) Generate(context.Context, string, bool) (*sifter.GenerateReport, error) {
	return &sifter.GenerateReport{}, nil
}

func (s *stubService) Preload(context.Context) (int, error) { return len(s.designs), nil }

func (s *stubService) Match(ctx context.Context, imagePath string) (*sifter.MatchInfo, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	data, _ := os.ReadFile(imagePath)

	s.mu.Lock()
	s.gotPath = imagePath
	s.gotBytes = data
	s.mu.Unlock()

	if s.matchErr != nil {
		return nil, s.matchErr
	}
	return &sifter.MatchInfo{
		ID:         1234,
		DesignURL:  "http://www.threadless.com/product/1234",
		Title:      "Sunset Bears",
		Artist:     "Jane Doe",
		Confidence: 0.5,
		Width:      400,
		Height:     300,
	}, nil
}

func (s *stubService) RunAccuracyTest(context.Context, string, int) (*sifter.AccuracyReport, error) {
	return &sifter.AccuracyReport{}, nil
}

func (s *stubService) GetDesign(id int) (*sifter.Design, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.designs[id]
	if !ok {
		return nil, fmt.Errorf("design %d: %w", id, sifter.ErrDesignNotFound)
	}
	return &d, nil
}

func (s *stubService) ListDesigns() ([]sifter.Design, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sifter.Design
	for _, id := range []int{7, 1234} {
		if d, ok := s.designs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubService) DeleteDesign(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.designs[id]; !ok {
		return fmt.Errorf("design %d: %w", id, sifter.ErrDesignNotFound)
	}
	delete(s.designs, id)
	return nil
}

func (s *stubService) Stats() (*sifter.Stats, error) {
	return &sifter.Stats{Designs: int64(len(s.designs)), DescriptorSets: 2, Preloaded: 2}, nil
}

func (s *stubService) Close() error { return nil }

func setupTestServer(t *testing.T, svc sifter.Service) (*Server, http.Handler) {
	t.Helper()
	server := NewServer(svc, &ServerConfig{
		Port:           8080,
		DBPath:         "test.sqlite3",
		TempDir:        t.TempDir(),
		AllowedOrigins: []string{"*"},
	})
	return server, server.setupRoutes()
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	part.Write(data)
	mw.Close()
	return &body, mw.FormDataContentType()
}

func TestHandleMatch(t *testing.T) {
	svc := newStubService()
	server, handler := setupTestServer(t, svc)

	body, ct := multipartBody(t, "image", "abcdefgh.jpg", []byte("jpeg data"))
	req := httptest.NewRequest(http.MethodPost, "/match", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ctype := w.Header().Get("Content-Type"); ctype != "application/json" {
		t.Errorf("Expected application/json, got %q", ctype)
	}

	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	for _, key := range []string{"id", "design_url", "title", "artist", "added", "artist_url",
		"confidence", "elapsed", "thumbnail", "width", "height"} {
		if _, ok := got[key]; !ok {
			t.Errorf("Response missing %q", key)
		}
	}
	if got["id"].(float64) != 1234 {
		t.Errorf("Unexpected id %v", got["id"])
	}

	if string(svc.gotBytes) != "jpeg data" {
		t.Errorf("Service saw %q", svc.gotBytes)
	}
	if _, err := os.Stat(svc.gotPath); !os.IsNotExist(err) {
		t.Error("Expected the upload temp file removed")
	}
	if server.pending.Load() != 0 {
		t.Errorf("Expected no pending matches, got %d", server.pending.Load())
	}
}

func TestHandleMatchAnyFileField(t *testing.T) {
	svc := newStubService()
	_, handler := setupTestServer(t, svc)

	body, ct := multipartBody(t, "upload", "shirt.png", []byte("png data"))
	req := httptest.NewRequest(http.MethodPost, "/match", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if string(svc.gotBytes) != "png data" {
		t.Errorf("Service saw %q", svc.gotBytes)
	}
}

func TestHandleMatchErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no descriptors", sifter.ErrNoDescriptors, http.StatusServiceUnavailable},
		{"no match", sifter.ErrNoMatch, http.StatusNotFound},
		{"bad image", fmt.Errorf("%w: x.jpg: garbage", sifter.ErrBadImage), http.StatusBadRequest},
		{"other", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newStubService()
			svc.matchErr = tt.err
			_, handler := setupTestServer(t, svc)

			body, ct := multipartBody(t, "image", "a.jpg", []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/match", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Code != tt.want {
				t.Errorf("Expected ErrorResponse with code %d, got %q", tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleMatchNoFile(t *testing.T) {
	_, handler := setupTestServer(t, newStubService())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("note", "no file here")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/match", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestMethodAndPathContract(t *testing.T) {
	_, handler := setupTestServer(t, newStubService())

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/match", http.StatusMethodNotAllowed},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodPut, "/api/designs", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/designs/7", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/health/metrics", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/nope", http.StatusNotFound},
		{http.MethodGet, "/api/designs/abc", http.StatusNotFound},
		{http.MethodGet, "/", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, w.Code)
		}
	}
}

func TestHealthTracksPendingMatches(t *testing.T) {
	svc := newStubService()
	svc.block = make(chan struct{})
	svc.entered = make(chan struct{}, 2)
	server, handler := setupTestServer(t, svc)

	health := func() (int, string) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		return w.Code, w.Body.String()
	}

	if code, body := health(); code != http.StatusOK || body != "OK" {
		t.Fatalf("Expected healthy idle server, got %d %q", code, body)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		body, ct := multipartBody(t, "image", "a.jpg", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/match", body)
		req.Header.Set("Content-Type", ct)

		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.ServeHTTP(httptest.NewRecorder(), req)
		}()
	}

	for i := 0; i < 2; i++ {
		select {
		case <-svc.entered:
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for matches to start")
		}
	}

	if server.pending.Load() != 2 {
		t.Errorf("Expected 2 pending matches, got %d", server.pending.Load())
	}
	if code, _ := health(); code != http.StatusNotFound {
		t.Errorf("Expected 404 at the threshold, got %d", code)
	}

	close(svc.block)
	wg.Wait()

	if code, _ := health(); code != http.StatusOK {
		t.Errorf("Expected healthy after matches finish, got %d", code)
	}
}

func TestHealthIgnoresSlowUploads(t *testing.T) {
	server, handler := setupTestServer(t, newStubService())

	type upload struct {
		pw   *io.PipeWriter
		tail []byte
		w    *httptest.ResponseRecorder
	}
	var uploads []upload
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		body, ct := multipartBody(t, "image", "a.jpg", []byte("slow upload"))
		data := body.Bytes()
		pr, pw := io.Pipe()
		req := httptest.NewRequest(http.MethodPost, "/match", pr)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()

		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.ServeHTTP(w, req)
		}()

		// returns once the handler has consumed the head and is waiting on the rest
		if _, err := pw.Write(data[:len(data)/2]); err != nil {
			t.Fatalf("Failed to write upload head: %v", err)
		}
		uploads = append(uploads, upload{pw: pw, tail: data[len(data)/2:], w: w})
	}

	if server.pending.Load() != 0 {
		t.Errorf("Expected no pending matches while uploading, got %d", server.pending.Load())
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected healthy during slow uploads, got %d", w.Code)
	}

	for _, u := range uploads {
		if _, err := u.pw.Write(u.tail); err != nil {
			t.Fatalf("Failed to write upload tail: %v", err)
		}
		u.pw.Close()
	}
	wg.Wait()

	for i, u := range uploads {
		if u.w.Code != http.StatusOK {
			t.Errorf("upload %d: expected 200, got %d: %s", i, u.w.Code, u.w.Body.String())
		}
	}
	if server.pending.Load() != 0 {
		t.Errorf("Expected pending back to 0, got %d", server.pending.Load())
	}
}

func TestHandleListAndGetDesigns(t *testing.T) {
	_, handler := setupTestServer(t, newStubService())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/designs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var list ListDesignsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if list.Count != 2 || list.Designs[1].DesignURL != "http://www.threadless.com/product/1234" {
		t.Errorf("Unexpected list %+v", list)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/designs/7", nil))
	var d DesignDTO
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil || d.Title != "Robots" {
		t.Errorf("Unexpected design %+v, %v", d, err)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/designs/99", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown design, got %d", w.Code)
	}
}

func TestHandleDeleteDesign(t *testing.T) {
	svc := newStubService()
	_, handler := setupTestServer(t, svc)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/designs/7", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if _, err := svc.GetDesign(7); err == nil {
		t.Error("Expected design deleted")
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/designs/7", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", w.Code)
	}
}

func TestHandleMetrics(t *testing.T) {
	_, handler := setupTestServer(t, newStubService())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var m MetricsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if m.Status != "healthy" || m.DesignCount != 2 || m.UnhealthyThreshold != 2 {
		t.Errorf("Unexpected metrics %+v", m)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, handler := setupTestServer(t, newStubService())

	req := httptest.NewRequest(http.MethodOptions, "/match", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected wildcard CORS origin")
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if ip := getClientIP(req); ip != "10.0.0.1" {
		t.Errorf("Expected 10.0.0.1, got %s", ip)
	}
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	if ip := getClientIP(req); ip != "1.2.3.4" {
		t.Errorf("Expected 1.2.3.4, got %s", ip)
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	server := NewServer(newStubService(), &ServerConfig{Port: 0, TempDir: t.TempDir(), ShutdownTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down")
	}
}
