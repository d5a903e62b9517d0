package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/igolaizola/songclip/pkg/cmd/song"
	"github.com/igolaizola/songclip/pkg/generation"
	"github.com/igolaizola/songclip/pkg/store"
)

type Config struct {
	Song song.Config
	Addr string
}

type submitRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style"`
	Title        string `json:"title"`
	Model        string `json:"model"`
	Instrumental bool   `json:"instrumental"`
}

// Serve exposes the session store and the pipeline over HTTP. Generations
// are launched in the background, clients poll the session endpoints to
// follow progress.
func Serve(ctx context.Context, cfg *Config) error {
	log.Println("serve: server started")
	defer log.Println("serve: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	output := cfg.Song.Output
	if output == "" {
		output = "output"
	}
	s := store.New(output)

	p, notifier, err := song.Build(ctx, &cfg.Song)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	go func() {
		for e := range notifier.Events() {
			log.Printf("serve: [%s] %s\n", e.Stage, e.Message)
		}
	}()
	defer notifier.Close()

	// Background generations must finish (or be canceled) before the
	// notifier is closed.
	var generations sync.WaitGroup
	defer generations.Wait()

	mux := chi.NewRouter()
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	mux.Get("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := s.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	})

	mux.Get("/api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		session, err := s.Load(chi.URLParam(r, "id"))
		if errors.Is(err, generation.ErrNotFound) {
			httpError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	})

	mux.Get("/api/sessions/{id}/files/{name}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		name := chi.URLParam(r, "name")
		// Artifacts live flat inside the session directory, reject anything
		// that tries to escape it.
		if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			httpError(w, http.StatusBadRequest, fmt.Errorf("invalid file name"))
			return
		}
		if _, err := s.Load(id); err != nil {
			httpError(w, http.StatusNotFound, err)
			return
		}
		http.ServeFile(w, r, filepath.Join(s.Dir(id), name))
	})

	mux.Post("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		var in submitRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httpError(w, http.StatusBadRequest, err)
			return
		}
		model, err := generation.ParseModel(in.Model)
		if err != nil {
			httpError(w, http.StatusBadRequest, err)
			return
		}
		req := &generation.SongRequest{
			Prompt:       in.Prompt,
			Style:        in.Style,
			Title:        in.Title,
			Model:        model,
			CustomMode:   true,
			Instrumental: in.Instrumental,
		}
		if err := req.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, err)
			return
		}
		session, err := newSession(s, req)
		if errors.Is(err, errSessionExists) {
			httpError(w, http.StatusConflict, err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, err)
			return
		}
		generations.Add(1)
		go func() {
			defer generations.Done()
			if _, err := p.Resume(ctx, session.ID); err != nil {
				log.Printf("serve: session %s failed: %v\n", session.ID, err)
			}
		}()
		writeJSON(w, http.StatusAccepted, session)
	})

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("serve: couldn't shutdown server: %v\n", err)
		}
	}()
	log.Printf("serve: listening on %s\n", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

var errSessionExists = errors.New("serve: session already exists, retry in a second")

// newSession persists a fresh session. Session ids have unix second
// granularity, so two requests landing in the same second would silently
// overwrite each other; the second one is rejected instead.
func newSession(s *store.Store, req *generation.SongRequest) (*generation.Session, error) {
	session := generation.NewSession(req)
	if _, err := s.Load(session.ID); err == nil {
		return nil, fmt.Errorf("%w: %s", errSessionExists, session.ID)
	}
	if err := s.CreateDir(session); err != nil {
		return nil, err
	}
	if err := s.Save(session); err != nil {
		return nil, err
	}
	return session, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("serve: couldn't encode response: %v\n", err)
	}
}

func httpError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
