package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/amoffat/sifter/pkg/logger"
	"github.com/amoffat/sifter/pkg/sifter"
	"github.com/amoffat/sifter/pkg/sifter/features"
	"github.com/amoffat/sifter/pkg/utils"
)

const (
	uploadField    = "image"
	maxUploadBytes = 32 << 20
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service sifter.Service
	config  *ServerConfig
	log     sifter.Logger
	pending atomic.Int64
	started time.Time
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port               int
	DataDir            string
	DBPath             string
	TempDir            string
	DesignURLBase      string
	UnhealthyThreshold int64
	AllowedOrigins     []string
	ShutdownTimeout    time.Duration
}

// NewServer creates a new server instance
func NewServer(service sifter.Service, config *ServerConfig) *Server {
	if config.UnhealthyThreshold <= 0 {
		config.UnhealthyThreshold = 2
	}
	if config.DesignURLBase == "" {
		config.DesignURLBase = "http://www.threadless.com/product/"
	}
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger(),
		started: time.Now(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// respondPlain writes the bare status replies the match and health
// endpoints have always used.
func respondPlain(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(statusCode)
	io.WriteString(w, body)
}

// Healthy reports whether fewer matches than the threshold are running.
func (s *Server) Healthy() bool {
	return s.pending.Load() < s.config.UnhealthyThreshold
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "Sifter API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"match":        "POST /match",
			"health":       "GET /health",
			"metrics":      "GET /api/health/metrics",
			"designs":      "GET /api/designs",
			"getDesign":    "GET /api/designs/{id}",
			"deleteDesign": "DELETE /api/designs/{id}",
		},
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondPlain(w, http.StatusNotFound, "")
}

// handleHealth handles GET /health for load balancer checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondPlain(w, http.StatusMethodNotAllowed, "")
		return
	}
	if !s.Healthy() {
		respondPlain(w, http.StatusNotFound, "")
		return
	}
	respondPlain(w, http.StatusOK, "OK")
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats()
	if err != nil {
		s.log.Errorf("Failed to get stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	status := "healthy"
	if !s.Healthy() {
		status = "busy"
	}

	resp := MetricsResponse{
		Status:             status,
		DatabasePath:       s.config.DBPath,
		DesignCount:        stats.Designs,
		DescriptorSetCount: stats.DescriptorSets,
		Preloaded:          stats.Preloaded,
		PendingMatches:     s.pending.Load(),
		UnhealthyThreshold: s.config.UnhealthyThreshold,
		Uptime:             time.Since(s.started).Round(time.Second).String(),
	}
	if fi, err := os.Stat(s.config.DBPath); err == nil {
		resp.DatabaseSize = humanize.Bytes(uint64(fi.Size()))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleMatch handles POST /match (multipart image upload)
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondPlain(w, http.StatusMethodNotAllowed, "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	header := firstUpload(r.MultipartForm)
	if header == nil {
		s.respondError(w, http.StatusBadRequest, "image file is required")
		return
	}

	tempFile, err := s.saveUpload(header)
	if err != nil {
		s.log.Errorf("Failed to save upload: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return
	}
	defer utils.DeleteFile(tempFile)

	s.log.Infof("Matching uploaded file: %s (%s)", header.Filename, humanize.Bytes(uint64(header.Size)))
	s.pending.Add(1)
	info, err := s.service.Match(ctx, tempFile)
	s.pending.Add(-1)
	if err != nil {
		s.log.Errorf("Failed to match image: %v", err)
		switch {
		case errors.Is(err, sifter.ErrNoDescriptors):
			s.respondError(w, http.StatusServiceUnavailable, "No designs loaded")
		case errors.Is(err, sifter.ErrNoMatch):
			s.respondError(w, http.StatusNotFound, "No design matched")
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			s.respondError(w, http.StatusServiceUnavailable, "Match timed out")
		case errors.Is(err, sifter.ErrBadImage), errors.Is(err, features.ErrEmptyImage):
			s.respondError(w, http.StatusBadRequest, "Upload is not a usable image")
		default:
			s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to match image: %v", err))
		}
		return
	}

	s.log.Infof("Match complete: design %d (confidence %.3f)", info.ID, info.Confidence)
	s.respondJSON(w, http.StatusOK, info)
}

// firstUpload picks the "image" part when present, otherwise the first file
// part by field name.
func firstUpload(form *multipart.Form) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	if files := form.File[uploadField]; len(files) > 0 {
		return files[0]
	}
	fields := make([]string, 0, len(form.File))
	for name := range form.File {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	for _, name := range fields {
		if files := form.File[name]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

func (s *Server) saveUpload(header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".jpg"
	}
	tempFile := filepath.Join(s.config.TempDir, fmt.Sprintf("upload_%s%s", utils.GenerateUUID(), ext))
	out, err := os.Create(tempFile)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(tempFile)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(tempFile)
		return "", err
	}
	return tempFile, nil
}

func (s *Server) designDTO(d sifter.Design) DesignDTO {
	return DesignDTO{
		ID:        d.ID,
		Title:     d.Title,
		Artist:    d.Artist,
		ArtistURL: d.ArtistURL,
		Added:     d.DateAdded,
		DesignURL: s.config.DesignURLBase + strconv.Itoa(d.ID),
		Width:     d.Width,
		Height:    d.Height,
	}
}

// handleListDesigns handles GET /api/designs
func (s *Server) handleListDesigns(w http.ResponseWriter, r *http.Request) {
	designs, err := s.service.ListDesigns()
	if err != nil {
		s.log.Errorf("Failed to list designs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve designs")
		return
	}

	dtos := make([]DesignDTO, len(designs))
	for i, d := range designs {
		dtos[i] = s.designDTO(d)
	}
	s.respondJSON(w, http.StatusOK, ListDesignsResponse{
		Designs: dtos,
		Count:   len(dtos),
	})
}

func designID(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["id"])
}

// handleGetDesign handles GET /api/designs/{id}
func (s *Server) handleGetDesign(w http.ResponseWriter, r *http.Request) {
	id, err := designID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid design ID")
		return
	}

	design, err := s.service.GetDesign(id)
	if err != nil {
		if errors.Is(err, sifter.ErrDesignNotFound) {
			s.log.Warnf("Design not found: %d", id)
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("Design with ID %d not found", id))
			return
		}
		s.log.Errorf("Failed to get design %d: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve design")
		return
	}
	s.respondJSON(w, http.StatusOK, s.designDTO(*design))
}

// handleDeleteDesign handles DELETE /api/designs/{id}
func (s *Server) handleDeleteDesign(w http.ResponseWriter, r *http.Request) {
	id, err := designID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid design ID")
		return
	}

	if err := s.service.DeleteDesign(id); err != nil {
		if errors.Is(err, sifter.ErrDesignNotFound) {
			s.log.Warnf("Design not found for deletion: %d", id)
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("Design with ID %d not found", id))
			return
		}
		s.log.Errorf("Failed to delete design %d: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to delete design")
		return
	}

	s.log.Infof("Deleted design %d", id)
	s.respondJSON(w, http.StatusOK, DeleteDesignResponse{
		Message: "Design deleted successfully",
		ID:      id,
	})
}
