package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"hound/internal/auth"
	"hound/internal/middleware"
)

// maxImageSize bounds uploaded images
const maxImageSize int64 = 32 << 20

// Services groups the implementations mounted by NewRouter
type Services struct {
	Health        *HealthImplementation
	Auth          *AuthImplementation
	Entities      *EntityImplementation
	Events        *EventsImplementation
	Cameras       *CameraImplementation // /api/cameras is mounted when set
	Authenticator *auth.Authenticator
	WebSocket     http.Handler // mounted at /ws/events/{entity_id} when set
}

// NewRouter builds the HTTP API
func NewRouter(s Services) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, err := s.Health.Healthz(r.Context())
		respond(w, status, err)
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		status, err := s.Health.Readyz(r.Context())
		respond(w, status, err)
	})

	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var payload LoginPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, &BadRequestError{Message: "invalid login payload"})
			return
		}
		result, err := s.Auth.Login(r.Context(), &payload)
		respond(w, result, err)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(s.Authenticator))

		r.Get("/api/auth/status", func(w http.ResponseWriter, r *http.Request) {
			status, err := s.Auth.Status(r.Context())
			respond(w, status, err)
		})

		r.Get("/api/entities", func(w http.ResponseWriter, r *http.Request) {
			list, err := s.Entities.List(r.Context())
			respond(w, list, err)
		})
		r.Get("/api/entities/{id}", func(w http.ResponseWriter, r *http.Request) {
			info, err := s.Entities.Get(r.Context(), chi.URLParam(r, "id"))
			respond(w, info, err)
		})
		r.Post("/api/entities/{id}/scan", func(w http.ResponseWriter, r *http.Request) {
			info, err := s.Entities.Scan(r.Context(), chi.URLParam(r, "id"))
			respond(w, info, err)
		})
		r.Post("/api/entities/{id}/process", func(w http.ResponseWriter, r *http.Request) {
			image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageSize))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, &TooLargeError{Limit: tooLarge.Limit})
					return
				}
				writeError(w, &BadRequestError{Message: fmt.Sprintf("failed to read image: %v", err)})
				return
			}
			info, err := s.Entities.Process(r.Context(), chi.URLParam(r, "id"), image)
			respond(w, info, err)
		})

		if s.Cameras != nil {
			r.Get("/api/cameras", func(w http.ResponseWriter, r *http.Request) {
				list, err := s.Cameras.List(r.Context())
				respond(w, list, err)
			})
			r.Get("/api/cameras/{id}", func(w http.ResponseWriter, r *http.Request) {
				info, err := s.Cameras.Get(r.Context(), chi.URLParam(r, "id"))
				respond(w, info, err)
			})
		}

		r.Get("/api/events", func(w http.ResponseWriter, r *http.Request) {
			limit := 0
			if v := r.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					writeError(w, &BadRequestError{Message: "limit must be an integer"})
					return
				}
				limit = n
			}
			events, err := s.Events.List(r.Context(), r.URL.Query().Get("entity_id"), limit)
			respond(w, events, err)
		})
	})

	if s.WebSocket != nil {
		r.Handle("/ws/events/{entity_id}", s.WebSocket)
	}

	return r
}

func respond(w http.ResponseWriter, body any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warnf("[HTTP] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var (
		notFound     *NotFoundError
		unauthorized *UnauthorizedError
		badRequest   *BadRequestError
		unavailable  *UnavailableError
		tooLarge     *TooLargeError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &unauthorized):
		status = http.StatusUnauthorized
	case errors.As(err, &badRequest):
		status = http.StatusBadRequest
	case errors.As(err, &unavailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
	default:
		log.Errorf("[HTTP] %v", err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
