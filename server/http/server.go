package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	mymem "github.com/maxfong/my-mem-mcp"
)

//go:embed console.html
var consoleHTML []byte

// Server is the admin console: an embedded HTML page plus a small JSON API
// over the service's read and delete operations. It never exposes embedding
// vectors.
type Server struct {
	service *mymem.Service
	options Options
	router  *mux.Router
}

func NewServer(service *mymem.Service, opts ...Option) *Server {
	options := NewOptions(opts...)

	s := &Server{
		service: service,
		options: options,
	}

	router := mux.NewRouter()
	router.HandleFunc("/", s.handleConsole).Methods(http.MethodGet)
	router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/users", s.handleUsers).Methods(http.MethodGet)
	router.HandleFunc("/api/memories", s.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/memories/{id}", s.handleDelete).Methods(http.MethodDelete)
	s.router = router

	return s
}

// Handler exposes the router. Test hook.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run blocks serving the console until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.options.Address,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	log.Printf("admin console listening on %s", s.options.Address)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(consoleHTML)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.service.Status(r.Context()))
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users := s.service.ListUsers()

	type userSummary struct {
		UserId string `json:"user_id"`
		Count  int    `json:"count"`
	}

	summaries := make([]userSummary, 0, len(users))
	for _, user := range users {
		summaries = append(summaries, userSummary{
			UserId: user,
			Count:  s.service.CountMessages(user),
		})
	}

	s.respond(w, http.StatusOK, map[string]any{"users": summaries})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userId := r.URL.Query().Get("user_id")
	if len(userId) == 0 {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	views := s.service.ListMessages(userId)

	s.respond(w, http.StatusOK, map[string]any{
		"user_id":  userId,
		"count":    len(views),
		"memories": views,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	userId := r.URL.Query().Get("user_id")
	if len(userId) == 0 {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	id := mux.Vars(r)["id"]

	deleted, err := s.service.DeleteMessageFor(r.Context(), userId, id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !deleted {
		s.respondError(w, http.StatusNotFound, "memory not found")
		return
	}

	s.respond(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

func (s *Server) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, map[string]any{"error": message})
}
