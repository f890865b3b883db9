// Package server assembles the HTTP surface: REST API, SSE events,
// static files, and the editor pages.
package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/mapdeck/mapdeck/internal/api"
	"github.com/mapdeck/mapdeck/internal/api/editor"
	"github.com/mapdeck/mapdeck/internal/service"
	"github.com/mapdeck/mapdeck/internal/shell"
	"github.com/mapdeck/mapdeck/internal/store"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Path to web/ directory for static files and pages
}

// Server is the mapdeck HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	geoms    *store.GeometryStore
	services *api.Services
}

// New creates a new mapdeck server.
func New(cfg Config) *Server {
	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("mapdeck API", "1.0.0")
	humaConfig.Info.Description = "Collaborative map editor API for drawing, importing, and managing map layers."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}

	humaAPI := humago.New(mux, humaConfig)

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humaAPI,
	}

	// DuckDB is optional; the editor works without it.
	if conn, err := store.Open(store.Config{DataDir: cfg.DataDir, DBName: "mapdeck"}); err == nil {
		s.db = conn
		s.geoms = store.NewGeometryStore(conn)
	}

	layerSvc := service.NewLayerService(cfg.DataDir)
	mapSvc := service.NewMapService(cfg.DataDir)
	s.services = &api.Services{
		Layer:   layerSvc,
		Map:     mapSvc,
		Comment: service.NewCommentService(cfg.DataDir),
		Source:  service.NewSourceService(cfg.DataDir),
		Shells:  shell.NewManager(layerSvc, mapSvc, service.DefaultBus, s.geoms, nil, nil),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated spec for the CLI export command.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Close closes server resources.
func (s *Server) Close() error {
	s.services.Shells.CloseAll()
	return store.Close()
}

func (s *Server) routes() {
	// Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)

	api.NewInfoHandler(s.config.DataDir, s.db != nil).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db, s.geoms).RegisterRoutes(s.humaAPI)

	// SSE event stream for connected clients
	editor.NewEventHandler(service.DefaultBus).RegisterRoutes(s.humaAPI)

	// Source upload/delete stay on plain handlers: multipart and
	// path-suffix routing don't fit Huma's schema model well.
	s.mux.HandleFunc("/api/v1/editor/sources/upload", s.handleSourceUpload)
	s.mux.HandleFunc("/api/v1/editor/sources/", s.handleSourceDelete)

	// Static files
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	// Page routes
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/editor", s.handleEditor)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "mapdeck",
		"status":  "running",
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	templatePath := filepath.Join(s.config.WebDir, "templates", "viewer.html")
	http.ServeFile(w, r, templatePath)
}

func (s *Server) handleEditor(w http.ResponseWriter, r *http.Request) {
	templatePath := filepath.Join(s.config.WebDir, "templates", "editor.html")
	http.ServeFile(w, r, templatePath)
}

// handleSourceUpload handles GeoJSON file uploads.
func (s *Server) handleSourceUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(50 << 20); err != nil {
		http.Error(w, "Failed to parse upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".geojson" && ext != ".json" {
		http.Error(w, "Only .geojson or .json files are allowed", http.StatusBadRequest)
		return
	}
	if strings.ContainsAny(header.Filename, "/\\") || strings.Contains(header.Filename, "..") {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}

	sourcesDir := filepath.Join(s.config.DataDir, "sources")
	if err := os.MkdirAll(sourcesDir, 0755); err != nil {
		http.Error(w, "Failed to prepare sources directory", http.StatusInternalServerError)
		return
	}
	destPath := filepath.Join(sourcesDir, header.Filename)

	dest, err := os.Create(destPath)
	if err != nil {
		http.Error(w, "Failed to save file: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer dest.Close()

	if _, err := io.Copy(dest, file); err != nil {
		http.Error(w, "Failed to write file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	service.DefaultBus.Publish(service.Event{Resource: "sources", Action: "uploaded", ID: header.Filename})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "File uploaded: " + header.Filename})
}

// handleSourceDelete deletes a source file.
func (s *Server) handleSourceDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != "DELETE" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	prefix := "/api/v1/editor/sources/"
	filename := strings.TrimPrefix(r.URL.Path, prefix)
	if filename == "" {
		http.Error(w, "Filename required", http.StatusBadRequest)
		return
	}
	if strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}

	filePath := filepath.Join(s.config.DataDir, "sources", filename)
	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "File not found", http.StatusNotFound)
		} else {
			http.Error(w, "Failed to delete file: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	service.DefaultBus.Publish(service.Event{Resource: "sources", Action: "deleted", ID: filename})

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Deleted"))
}
