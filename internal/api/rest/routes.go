// Package rest exposes the live-play engine over a JSON HTTP API.
package rest

import "net/http"

// Service defines the route handlers consumed by this route module.
type Service interface {
	HandleStartSession(w http.ResponseWriter, r *http.Request)
	HandleIngestPoint(w http.ResponseWriter, r *http.Request, sessionID string)
	HandleEndSession(w http.ResponseWriter, r *http.Request, sessionID string)
	HandleGetSession(w http.ResponseWriter, r *http.Request, sessionID string)
	HandleGetTrail(w http.ResponseWriter, r *http.Request, sessionID string)
	HandleUserCuts(w http.ResponseWriter, r *http.Request, userID string)
	HandleHealth(w http.ResponseWriter, r *http.Request)
}

// RegisterRoutes wires the API routes into the provided mux.
func RegisterRoutes(mux *http.ServeMux, service Service) {
	if mux == nil || service == nil {
		return
	}
	mux.HandleFunc("POST /v1/sessions", service.HandleStartSession)
	mux.HandleFunc("POST /v1/sessions/{id}/points", func(w http.ResponseWriter, r *http.Request) {
		service.HandleIngestPoint(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /v1/sessions/{id}/end", func(w http.ResponseWriter, r *http.Request) {
		service.HandleEndSession(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		service.HandleGetSession(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /v1/sessions/{id}/trail", func(w http.ResponseWriter, r *http.Request) {
		service.HandleGetTrail(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /v1/users/{id}/cuts", func(w http.ResponseWriter, r *http.Request) {
		service.HandleUserCuts(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /healthz", service.HandleHealth)
}
