// Package museumtest serves an in-memory imitation of the museum collection
// API for tests. Its defaults reproduce the upstream quirks the verifier
// tracks as known issues; the exported knobs break or fix behavior per test.
package museumtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"time"
)

// APIKey is the credential the fake accepts by default
const APIKey = "test-key"

// PageLimitMessage is returned when page*pageSize exceeds the ceiling
const PageLimitMessage = "page * pageSize cannot exceed 10,000"

// Server is a running fake
type Server struct {
	*httptest.Server

	// BaseURL is the API root, including the trailing slash.
	BaseURL string

	mu   sync.Mutex
	hits map[string]int

	objects  []artObject
	usersets []userSet

	// Knobs. Set them before the first request.
	EmptyUsersets        bool
	UsersetListStatus    int
	EnforcePageLimit     bool
	RejectNegativeSize   bool
	NotFoundForUnknownID bool
	DegeneratePagination bool
	LeakMaker            bool
	WrongCultureLinks    bool
	TilesDelay           time.Duration
}

type artObject struct {
	ObjectNumber string
	Title        string
	Maker        string
	ObjectType   string
	HasImage     bool
}

type userSet struct {
	ID    string
	Name  string
	Count int
}

// New starts a fake with a fixed catalogue
func New() *Server {
	s := &Server{hits: make(map[string]int)}
	s.objects = catalogue()
	s.usersets = usersets()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/{culture}/collection", s.handleCollection)
	mux.HandleFunc("GET /api/{culture}/collection/{objectNumber}", s.handleObject)
	mux.HandleFunc("GET /api/{culture}/collection/{objectNumber}/tiles", s.handleTiles)
	mux.HandleFunc("GET /api/{culture}/usersets", s.handleUsersets)
	mux.HandleFunc("GET /api/{culture}/usersets/{id}", s.handleUserset)

	s.Server = httptest.NewServer(s.record(mux))
	s.BaseURL = s.Server.URL + "/api/"
	return s
}

// Hits returns how many requests reached a path, e.g. "/api/nl/usersets".
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits returns the number of requests served
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func catalogue() []artObject {
	makers := []string{"Rembrandt van Rijn", "Johannes Vermeer", "Frans Hals", "Jan Steen"}
	types := []string{"painting", "print", "drawing"}

	objects := []artObject{{
		ObjectNumber: "SK-C-5",
		Title:        "De Nachtwacht",
		Maker:        "Rembrandt van Rijn",
		ObjectType:   "painting",
		HasImage:     true,
	}}
	for i := 1; i <= 40; i++ {
		objects = append(objects, artObject{
			ObjectNumber: fmt.Sprintf("SK-A-%d", 1000+i),
			Title:        fmt.Sprintf("Artwork %d", i),
			Maker:        makers[i%len(makers)],
			ObjectType:   types[i%len(types)],
			HasImage:     i%7 != 0,
		})
	}
	return objects
}

func usersets() []userSet {
	sets := make([]userSet, 0, 25)
	for i := 1; i <= 25; i++ {
		sets = append(sets, userSet{
			ID:    fmt.Sprintf("%d-set-%02d", 100+i, i),
			Name:  fmt.Sprintf("Set %d", i),
			Count: i % 5,
		})
	}
	return sets
}

func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Query().Get("key") != APIKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid key"})
		return false
	}
	return true
}

func formatSupported(w http.ResponseWriter, r *http.Request) bool {
	switch r.URL.Query().Get("format") {
	case "", "json":
		return true
	}
	http.Error(w, "Not Found", http.StatusNotFound)
	return false
}

func (s *Server) webLink(culture, kind, id string) string {
	if s.WrongCultureLinks {
		culture = "xx"
	}
	return fmt.Sprintf("https://museum.test/%s/%s/%s", culture, kind, id)
}

func (s *Server) objectJSON(culture string, o artObject) map[string]interface{} {
	var image interface{}
	if o.HasImage {
		image = map[string]interface{}{
			"url":    "https://images.test/" + o.ObjectNumber + ".jpg",
			"width":  2500,
			"height": 2034,
		}
	}
	return map[string]interface{}{
		"id":                    culture + "-" + o.ObjectNumber,
		"objectNumber":          o.ObjectNumber,
		"title":                 o.Title,
		"principalOrFirstMaker": o.Maker,
		"hasImage":              o.HasImage,
		"webImage":              image,
		"links": map[string]interface{}{
			"self": "https://museum.test/api/" + culture + "/collection/" + o.ObjectNumber,
			"web":  s.webLink(culture, "collection", o.ObjectNumber),
		},
	}
}

func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) || !formatSupported(w, r) {
		return
	}
	culture := r.PathValue("culture")
	q := r.URL.Query()

	matches := make([]artObject, 0, len(s.objects))
	for _, o := range s.objects {
		if maker := q.Get("involvedMaker"); maker != "" && o.Maker != maker {
			continue
		}
		if q.Get("imgonly") == "true" && !o.HasImage {
			continue
		}
		matches = append(matches, o)
	}
	if s.LeakMaker && q.Get("involvedMaker") != "" {
		intruder := artObject{ObjectNumber: "SK-X-1", Title: "Intruder", Maker: "Anonymous", HasImage: true}
		matches = append([]artObject{intruder}, matches...)
	}

	switch q.Get("s") {
	case "objecttype":
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].ObjectType < matches[j].ObjectType })
	case "artist":
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].Maker < matches[j].Maker })
	}

	ps := intParam(r, "ps", 10)
	if ps < 0 {
		if s.RejectNegativeSize {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ps must be positive"})
			return
		}
		ps = 10
	}
	if ps == 0 {
		ps = 10
	}
	p := intParam(r, "p", 1)
	if p < 1 || s.DegeneratePagination {
		p = 1
	}

	start := (p - 1) * ps
	end := start + ps
	if start > len(matches) {
		start = len(matches)
	}
	if end > len(matches) {
		end = len(matches)
	}

	items := make([]interface{}, 0, end-start)
	for _, o := range matches[start:end] {
		items = append(items, s.objectJSON(culture, o))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"elapsedMilliseconds": 12,
		"count":               len(matches),
		"artObjects":          items,
	})
}

func (s *Server) findObject(objectNumber string) (artObject, bool) {
	for _, o := range s.objects {
		if o.ObjectNumber == objectNumber {
			return o, true
		}
	}
	return artObject{}, false
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) || !formatSupported(w, r) {
		return
	}
	culture := r.PathValue("culture")
	o, ok := s.findObject(r.PathValue("objectNumber"))
	if !ok {
		if s.NotFoundForUnknownID {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"artObject": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"elapsedMilliseconds": 8,
		"artObject":           s.objectJSON(culture, o),
	})
}

func (s *Server) handleTiles(w http.ResponseWriter, r *http.Request) {
	if s.TilesDelay > 0 {
		select {
		case <-time.After(s.TilesDelay):
		case <-r.Context().Done():
			return
		}
	}
	if !s.authorized(w, r) {
		return
	}
	o, ok := s.findObject(r.PathValue("objectNumber"))
	if !ok || !o.HasImage {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"levels": []interface{}{
			map[string]interface{}{
				"name":   "z0",
				"width":  2500,
				"height": 2034,
				"tiles": []interface{}{
					map[string]interface{}{"x": 0, "y": 0, "url": "https://images.test/" + o.ObjectNumber + "/z0/0_0.jpg"},
				},
			},
		},
	})
}

func (s *Server) userSetJSON(culture string, u userSet) map[string]interface{} {
	return map[string]interface{}{
		"id":    u.ID,
		"name":  u.Name,
		"count": u.Count,
		"links": map[string]interface{}{
			"web": s.webLink(culture, "usersets", u.ID),
		},
	}
}

func (s *Server) handleUsersets(w http.ResponseWriter, r *http.Request) {
	if s.UsersetListStatus != 0 {
		writeJSON(w, s.UsersetListStatus, map[string]string{"error": "unavailable"})
		return
	}
	if !s.authorized(w, r) || !formatSupported(w, r) {
		return
	}
	culture := r.PathValue("culture")

	page := intParam(r, "page", 0)
	pageSize := intParam(r, "pageSize", 10)
	if page < 0 || s.DegeneratePagination {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	if page*pageSize > 10000 && s.EnforcePageLimit {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": PageLimitMessage})
		return
	}

	sets := s.usersets
	if s.EmptyUsersets {
		sets = nil
	}
	start := page * pageSize
	end := start + pageSize
	if start > len(sets) {
		start = len(sets)
	}
	if end > len(sets) {
		end = len(sets)
	}

	items := make([]interface{}, 0, end-start)
	for _, u := range sets[start:end] {
		items = append(items, s.userSetJSON(culture, u))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sets),
		"userSets": items,
	})
}

func (s *Server) handleUserset(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) || !formatSupported(w, r) {
		return
	}
	culture := r.PathValue("culture")
	for _, u := range s.usersets {
		if u.ID == r.PathValue("id") {
			writeJSON(w, http.StatusOK, map[string]interface{}{"userSet": s.userSetJSON(culture, u)})
			return
		}
	}
	http.Error(w, "Not Found", http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
