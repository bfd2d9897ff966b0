package opensearch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeCluster serves the subset of the OpenSearch REST API used by Client
// for a single index.
type fakeCluster struct {
	mu          sync.Mutex
	index       string
	exists      bool
	docs        map[string]json.RawMessage
	requests    int
	lastSearch  map[string]interface{}
	refreshes   int
	createdWith map[string]interface{}
	failWith    int
}

func newFakeCluster(t *testing.T, index string) (*fakeCluster, *httptest.Server) {
	t.Helper()
	f := &fakeCluster{index: index, exists: true, docs: map[string]json.RawMessage{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeCluster) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	if f.failWith != 0 {
		writeJSON(w, f.failWith, map[string]interface{}{"error": "cluster_block_exception"})
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if parts[0] != f.index {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "index_not_found_exception"})
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodHead:
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case len(parts) == 1 && r.Method == http.MethodPut:
		_ = json.NewDecoder(r.Body).Decode(&f.createdWith)
		f.exists = true
		writeJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": true})
	case !f.exists:
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "index_not_found_exception"})
	case len(parts) == 3 && parts[1] == "_doc":
		f.serveDoc(w, r, parts[2])
	case parts[1] == "_search":
		_ = json.NewDecoder(r.Body).Decode(&f.lastSearch)
		hits := []map[string]interface{}{}
		for id, src := range f.docs {
			hits = append(hits, map[string]interface{}{"_id": id, "_source": src})
		}
		if size, ok := f.lastSearch["size"].(float64); ok && int(size) < len(hits) {
			hits = hits[:int(size)]
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"hits": map[string]interface{}{"hits": hits}})
	case parts[1] == "_count":
		writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(f.docs)})
	case parts[1] == "_refresh":
		f.refreshes++
		writeJSON(w, http.StatusOK, map[string]interface{}{"_shards": map[string]int{"successful": 1}})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unsupported"})
	}
}

func (f *fakeCluster) serveDoc(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		src, ok := f.docs[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"_id": id, "found": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"_id": id, "found": true, "_source": src})
	case http.MethodPut:
		var raw json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&raw)
		f.docs[id] = raw
		writeJSON(w, http.StatusCreated, map[string]interface{}{"_id": id, "result": "created"})
	case http.MethodDelete:
		if _, ok := f.docs[id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"_id": id, "result": "not_found"})
			return
		}
		delete(f.docs, id)
		writeJSON(w, http.StatusOK, map[string]interface{}{"_id": id, "result": "deleted"})
	}
}
