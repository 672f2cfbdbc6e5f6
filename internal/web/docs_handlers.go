package web

import (
	"encoding/json"
	"net/http"
	"strings"
)

// handleDocsList returns the available documentation files.
func (s *Server) handleDocsList(w http.ResponseWriter, r *http.Request) {
	names, err := s.docs.ListDocs()
	if err != nil {
		http.Error(w, "Failed to list docs", http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(names)
}

// handleDocContent renders one AsciiDoc file as HTML.
func (s *Server) handleDocContent(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/docs/")
	if name == "" {
		http.NotFound(w, r)
		return
	}

	html, err := s.docs.GetDoc(r.Context(), name)
	if err != nil {
		http.Error(w, "Doc not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}
