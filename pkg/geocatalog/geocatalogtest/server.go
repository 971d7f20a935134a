// Package geocatalogtest provides an in-memory GeoCatalog API for tests.
package geocatalogtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/robert-malhotra/go-stac-ingest/pkg/stac"
)

// Asset is an uploaded collection asset.
type Asset struct {
	Data        map[string]any
	Filename    string
	ContentType string
	Content     []byte
}

// Server is a fake GeoCatalog. Fields may be set before the first request;
// use the accessor methods afterwards.
type Server struct {
	*httptest.Server

	// CollectionStatus overrides the status code of collection creation.
	CollectionStatus int
	// NotFoundReads makes the first N collection reads return 404.
	NotFoundReads int
	// FailBatches maps a 1-based batch number to the status returned for it.
	FailBatches map[int]int
	// PollsUntilDone is how many status checks return "Running" before an
	// operation reaches its final status.
	PollsUntilDone int
	// FinalStatus maps an operation id to its final status; default "Succeeded".
	FinalStatus map[string]string
	// StatusErrors makes the first N status checks fail with 500.
	StatusErrors int

	mu          sync.Mutex
	collections map[string]*stac.Collection
	items       map[string][]*stac.Item
	assets      map[string][]Asset
	batches     [][]*stac.Item
	polls       map[string]int
	apiVersions map[string]bool
	authHeaders map[string]bool
	requests    map[string]int
}

// NewServer starts a fake GeoCatalog.
func NewServer() *Server {
	s := &Server{
		collections: map[string]*stac.Collection{},
		items:       map[string][]*stac.Item{},
		assets:      map[string][]Asset{},
		polls:       map[string]int{},
		apiVersions: map[string]bool{},
		authHeaders: map[string]bool{},
		requests:    map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apiVersions[r.URL.Query().Get("api-version")] = true
	s.authHeaders[r.Header.Get("Authorization")] = true
	s.requests[r.Method+" "+r.URL.Path]++

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodPost && match(parts, "stac", "collections"):
		s.createCollection(w, r)
	case r.Method == http.MethodGet && match(parts, "stac", "collections", "*"):
		s.getCollection(w, parts[2])
	case r.Method == http.MethodPost && match(parts, "stac", "collections", "*", "assets"):
		s.addAsset(w, r, parts[2])
	case r.Method == http.MethodPost && match(parts, "stac", "collections", "*", "items"):
		s.createItems(w, r, parts[2])
	case r.Method == http.MethodGet && match(parts, "inma", "operations", "*"):
		s.getOperation(w, parts[2])
	case r.Method == http.MethodPost && match(parts, "stac", "search"):
		s.search(w, r)
	default:
		writeError(w, http.StatusNotFound, "NotFound", r.Method+" "+r.URL.Path)
	}
}

func match(parts []string, pattern ...string) bool {
	if len(parts) != len(pattern) {
		return false
	}
	for i, p := range pattern {
		if p != "*" && p != parts[i] {
			return false
		}
	}
	return true
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var col stac.Collection
	if err := json.NewDecoder(r.Body).Decode(&col); err != nil || col.ID == "" {
		writeError(w, http.StatusBadRequest, "InvalidCollection", "collection id is required")
		return
	}
	if s.CollectionStatus >= 300 {
		writeError(w, s.CollectionStatus, "CollectionRejected", "rejected "+col.ID)
		return
	}
	if _, ok := s.collections[col.ID]; ok {
		writeError(w, http.StatusConflict, "Conflict", "collection exists")
		return
	}
	s.collections[col.ID] = &col
	status := s.CollectionStatus
	if status == 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, &col)
}

func (s *Server) getCollection(w http.ResponseWriter, id string) {
	col, ok := s.collections[id]
	if !ok || s.NotFoundReads > 0 {
		if s.NotFoundReads > 0 {
			s.NotFoundReads--
		}
		writeError(w, http.StatusNotFound, "NotFound", "collection "+id)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

func (s *Server) addAsset(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := s.collections[id]; !ok {
		writeError(w, http.StatusNotFound, "NotFound", "collection "+id)
		return
	}
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidForm", err.Error())
		return
	}
	var asset Asset
	if err := json.Unmarshal([]byte(r.FormValue("data")), &asset.Data); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidData", err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "MissingFile", err.Error())
		return
	}
	defer file.Close()
	asset.Filename = header.Filename
	asset.ContentType = header.Header.Get("Content-Type")
	asset.Content, _ = io.ReadAll(file)
	s.assets[id] = append(s.assets[id], asset)
	writeJSON(w, http.StatusCreated, asset.Data)
}

func (s *Server) createItems(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := s.collections[id]; !ok {
		writeError(w, http.StatusNotFound, "NotFound", "collection "+id)
		return
	}
	var fc stac.ItemCollection
	if err := json.NewDecoder(r.Body).Decode(&fc); err != nil || fc.Type != "FeatureCollection" {
		writeError(w, http.StatusBadRequest, "InvalidFeatureCollection", "expected a FeatureCollection")
		return
	}
	s.batches = append(s.batches, fc.Features)
	batch := len(s.batches)
	if status, ok := s.FailBatches[batch]; ok {
		writeError(w, status, "IngestionRejected", fmt.Sprintf("batch %d rejected", batch))
		return
	}
	s.items[id] = append(s.items[id], fc.Features...)
	opID := fmt.Sprintf("op-%d", batch)
	s.polls[opID] = 0
	writeJSON(w, http.StatusAccepted, map[string]any{"id": opID, "status": "Pending", "collectionId": id})
}

func (s *Server) getOperation(w http.ResponseWriter, id string) {
	polls, ok := s.polls[id]
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", "operation "+id)
		return
	}
	if s.StatusErrors > 0 {
		s.StatusErrors--
		writeError(w, http.StatusInternalServerError, "InternalError", "try again")
		return
	}
	s.polls[id] = polls + 1
	status := "Running"
	if polls >= s.PollsUntilDone {
		status = "Succeeded"
		if final, ok := s.FinalStatus[id]; ok {
			status = final
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Collections []string `json:"collections"`
		Limit       int      `json:"limit"`
		Token       string   `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidSearch", err.Error())
		return
	}
	var matched []*stac.Item
	for _, c := range body.Collections {
		matched = append(matched, s.items[c]...)
	}
	limit := body.Limit
	if limit <= 0 {
		limit = 10
	}
	start, _ := strconv.Atoi(body.Token)
	end := min(start+limit, len(matched))
	if start > end {
		start = end
	}
	fc := stac.NewItemCollection(matched[start:end])
	if end < len(matched) {
		fc.Links = []*stac.Link{{
			Rel: "next", Href: "http://" + r.Host + "/stac/search", Method: http.MethodPost, Merge: true,
			Body: map[string]any{"token": strconv.Itoa(end)},
		}}
	}
	writeJSON(w, http.StatusOK, fc)
}

// Collection returns a created collection.
func (s *Server) Collection(id string) (*stac.Collection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[id]
	return col, ok
}

// CollectionIDs returns the ids of all created collections.
func (s *Server) CollectionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.collections))
	for id := range s.collections {
		ids = append(ids, id)
	}
	return ids
}

// Items returns the accepted items of a collection.
func (s *Server) Items(id string) []*stac.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*stac.Item(nil), s.items[id]...)
}

// Assets returns the uploaded assets of a collection.
func (s *Server) Assets(id string) []Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Asset(nil), s.assets[id]...)
}

// BatchSizes returns the size of every submitted batch, accepted or not.
func (s *Server) BatchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, len(s.batches))
	for i, b := range s.batches {
		sizes[i] = len(b)
	}
	return sizes
}

// Requests returns how many requests were made with method to path.
func (s *Server) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

// SawAPIVersion reports whether any request carried the api-version value.
func (s *Server) SawAPIVersion(v string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiVersions[v]
}

// SawAuthorization reports whether any request carried the header value.
func (s *Server) SawAuthorization(v string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authHeaders[v]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"code": code, "message": message}})
}
