package server

import (
	"net/http"

	"github.com/ternarybob/datapilot/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	apiHandler := s.app.APIHandler
	jobHandler := s.app.JobHandler

	// System endpoints
	mux.HandleFunc("/api/health", apiHandler.HealthHandler)
	mux.HandleFunc("/api/version", apiHandler.VersionHandler)

	// Job submission and listing
	mux.HandleFunc("/api/upload", jobHandler.UploadHandler)
	mux.HandleFunc("/api/jobs", jobHandler.ListJobsHandler)

	// Per-job endpoints: /api/jobs/{id}[/cancel|/result]
	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		jobID, action := handlers.ExtractJobID(r.URL.Path)
		if jobID == "" {
			apiHandler.NotFoundHandler(w, r)
			return
		}
		switch action {
		case "":
			jobHandler.StatusHandler(w, r, jobID)
		case "cancel":
			jobHandler.CancelHandler(w, r, jobID)
		case "result":
			jobHandler.ResultHandler(w, r, jobID)
		default:
			apiHandler.NotFoundHandler(w, r)
		}
	})

	// Catch-all for unknown API routes
	mux.HandleFunc("/api/", apiHandler.NotFoundHandler)

	return mux
}
