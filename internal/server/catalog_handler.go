package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"ogkb/ogkbd/internal/catalog"
	"ogkb/ogkbd/pkg/httpx"
)

// urlParam returns a decoded route parameter. chi matches on the raw path
// when the request carried escapes such as %2F, so decode only then.
func urlParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	lib, err := urlParam(r, "library")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad library")
		return
	}
	chs, err := s.catalog.Chapters(lib)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	s.metrics.Catalog(lib)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"library": lib, "chapters": chs})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	lib, err1 := urlParam(r, "library")
	ch, err2 := urlParam(r, "chapter")
	if err1 != nil || err2 != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad path")
		return
	}
	q := catalog.Query{Filter: r.URL.Query().Get("q")}
	switch r.URL.Query().Get("order") {
	case "", "asc":
	case "desc":
		q.Desc = true
	default:
		httpx.WriteError(w, http.StatusBadRequest, "order must be asc or desc")
		return
	}
	assets, err := s.catalog.Assets(lib, ch, q)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	s.metrics.Catalog(lib)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"library": lib, "chapter": ch, "assets": assets})
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	lib, err1 := urlParam(r, "library")
	ch, err2 := urlParam(r, "chapter")
	name, err3 := urlParam(r, "file")
	if err1 != nil || err2 != nil || err3 != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad path")
		return
	}
	p, err := s.catalog.AssetPath(lib, ch, name)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	s.metrics.Catalog(lib)
	http.ServeFile(w, r, p)
}

func writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownLibrary), errors.Is(err, catalog.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrBadChapter), errors.Is(err, catalog.ErrBadAsset):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "catalog unavailable")
	}
}
