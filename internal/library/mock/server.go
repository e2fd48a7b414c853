// Package mock is an in-memory implementation of the library service HTTP API.
// It backs end-to-end tests and local dry runs of the load profiles.
package mock

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Route names, as reported by Hits.
const (
	RouteRegisterAuthor   = "register_author"
	RouteChangeAuthorInfo = "change_author_info"
	RouteGetAuthorInfo    = "get_author_info"
	RouteAddBook          = "add_book"
	RouteUpdateBook       = "update_book"
	RouteGetBookInfo      = "get_book_info"
	RouteGetAuthorBooks   = "get_author_books"
)

// Status codes carried in error bodies, as the gRPC gateway would send them.
const (
	codeInvalidArgument = 3
	codeNotFound        = 5
	codeInternal        = 13
)

// Book is the wire form of a book.
type Book struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AuthorIDs []string  `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type author struct {
	id    string
	name  string
	books []string
}

// Server is the mock library service. It is safe for concurrent use.
type Server struct {
	logger      *zap.Logger
	latency     time.Duration
	failureRate float64

	mu      sync.RWMutex
	authors map[string]*author
	books   map[string]*Book

	hitsMu sync.Mutex
	hits   map[string]*atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLatency delays every response by d.
func WithLatency(d time.Duration) Option {
	return func(s *Server) {
		s.latency = d
	}
}

// WithFailureRate answers the given share of requests (0-1) with a 500.
func WithFailureRate(rate float64) Option {
	return func(s *Server) {
		s.failureRate = rate
	}
}

// WithLogger sets the logger used for request logging at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates an empty library service.
func NewServer(opts ...Option) *Server {
	s := &Server{
		logger:  zap.NewNop(),
		authors: make(map[string]*author),
		books:   make(map[string]*Book),
		hits:    make(map[string]*atomic.Int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes of the service.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.middleware)

	router.HandleFunc("/v1/library/author", s.registerAuthor).Methods(http.MethodPost).Name(RouteRegisterAuthor)
	router.HandleFunc("/v1/library/author", s.changeAuthorInfo).Methods(http.MethodPut).Name(RouteChangeAuthorInfo)
	router.HandleFunc("/v1/library/author/{id}", s.getAuthorInfo).Methods(http.MethodGet).Name(RouteGetAuthorInfo)
	router.HandleFunc("/v1/library/book", s.addBook).Methods(http.MethodPost).Name(RouteAddBook)
	router.HandleFunc("/v1/library/book", s.updateBook).Methods(http.MethodPut).Name(RouteUpdateBook)
	router.HandleFunc("/v1/library/book/{id}", s.getBookInfo).Methods(http.MethodGet).Name(RouteGetBookInfo)
	router.HandleFunc("/v1/library/author_books/{id}", s.getAuthorBooks).Methods(http.MethodGet).Name(RouteGetAuthorBooks)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	}).Methods(http.MethodGet)

	return router
}

// Hits returns the number of requests served per route.
func (s *Server) Hits() map[string]int64 {
	s.hitsMu.Lock()
	defer s.hitsMu.Unlock()

	out := make(map[string]int64, len(s.hits))
	for name, n := range s.hits {
		out[name] = n.Load()
	}
	return out
}

// Authors returns the number of stored authors.
func (s *Server) Authors() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.authors)
}

// Books returns the number of stored books.
func (s *Server) Books() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
			s.counter(route.GetName()).Add(1)
		}

		if s.latency > 0 {
			if err := sleep(r.Context(), s.latency); err != nil {
				return
			}
		}

		if s.failureRate > 0 && rand.Float64() < s.failureRate {
			writeError(w, http.StatusInternalServerError, codeInternal, "injected failure")
			return
		}

		s.logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) counter(route string) *atomic.Int64 {
	s.hitsMu.Lock()
	defer s.hitsMu.Unlock()

	c, ok := s.hits[route]
	if !ok {
		c = &atomic.Int64{}
		s.hits[route] = c
	}
	return c
}

type authorRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type bookRequest struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	AuthorIDs []string `json:"author_id"`
	// The gateway accepts both spellings.
	AuthorIDsCamel []string `json:"authorId"`
}

func (b *bookRequest) authorIDs() []string {
	if len(b.AuthorIDs) > 0 {
		return b.AuthorIDs
	}
	return b.AuthorIDsCamel
}

func (s *Server) registerAuthor(w http.ResponseWriter, r *http.Request) {
	var req authorRequest
	if !decode(w, r, &req) {
		return
	}
	if !validName(req.Name) {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid author name")
		return
	}

	a := &author{id: uuid.NewString(), name: req.Name}
	s.mu.Lock()
	s.authors[a.id] = a
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"id": a.id})
}

func (s *Server) changeAuthorInfo(w http.ResponseWriter, r *http.Request) {
	var req authorRequest
	if !decode(w, r, &req) {
		return
	}
	if !validID(req.ID) || !validName(req.Name) {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid change author info request")
		return
	}

	s.mu.Lock()
	a, ok := s.authors[req.ID]
	if ok {
		a.name = req.Name
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "author not found")
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) getAuthorInfo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !validID(id) {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid author id")
		return
	}

	s.mu.RLock()
	a, ok := s.authors[id]
	var resp authorRequest
	if ok {
		resp = authorRequest{ID: a.id, Name: a.name}
	}
	s.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "author not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) addBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !decode(w, r, &req) {
		return
	}
	authorIDs := req.authorIDs()
	if !validName(req.Name) || !allValidIDs(authorIDs) {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid add book request")
		return
	}

	now := time.Now().UTC()
	book := &Book{
		ID:        uuid.NewString(),
		Name:      req.Name,
		AuthorIDs: dedupe(authorIDs),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	for _, id := range book.AuthorIDs {
		if _, ok := s.authors[id]; !ok {
			s.mu.Unlock()
			writeError(w, http.StatusNotFound, codeNotFound, "author not found")
			return
		}
	}
	s.books[book.ID] = book
	for _, id := range book.AuthorIDs {
		s.authors[id].books = append(s.authors[id].books, book.ID)
	}
	resp := *book
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]Book{"book": resp})
}

func (s *Server) updateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !decode(w, r, &req) {
		return
	}
	authorIDs := dedupe(req.authorIDs())
	if !validID(req.ID) || !validName(req.Name) || !allValidIDs(authorIDs) {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid update book request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[req.ID]
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "book not found")
		return
	}
	for _, id := range authorIDs {
		if _, ok := s.authors[id]; !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "author not found")
			return
		}
	}

	for _, id := range book.AuthorIDs {
		a := s.authors[id]
		a.books = remove(a.books, book.ID)
	}
	for _, id := range authorIDs {
		s.authors[id].books = append(s.authors[id].books, book.ID)
	}
	book.Name = req.Name
	book.AuthorIDs = authorIDs
	book.UpdatedAt = time.Now().UTC()

	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) getBookInfo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !validID(id) {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid book id")
		return
	}

	s.mu.RLock()
	book, ok := s.books[id]
	var resp Book
	if ok {
		resp = *book
		resp.AuthorIDs = append([]string(nil), book.AuthorIDs...)
	}
	s.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "book not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]Book{"book": resp})
}

// getAuthorBooks streams one {"result": book} object per line, the way the
// gateway renders a server stream.
func (s *Server) getAuthorBooks(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !validID(id) {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid author id")
		return
	}

	s.mu.RLock()
	a, ok := s.authors[id]
	var books []Book
	if ok {
		for _, bookID := range a.books {
			b := *s.books[bookID]
			b.AuthorIDs = append([]string(nil), b.AuthorIDs...)
			books = append(books, b)
		}
	}
	s.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "author not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	for _, b := range books {
		if err := enc.Encode(map[string]Book{"result": b}); err != nil {
			s.logger.Debug("stream write failed", zap.Error(err))
			return
		}
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status, code int, message string) {
	writeJSON(w, status, map[string]interface{}{"code": code, "message": message})
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && len(name) <= 512
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func allValidIDs(ids []string) bool {
	for _, id := range ids {
		if !validID(id) {
			return false
		}
	}
	return true
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
