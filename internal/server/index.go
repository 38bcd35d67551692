package server

import (
	"net/http"

	"github.com/shirou/gopsutil/v3/disk"

	"ogkb/ogkbd/internal/catalog"
	"ogkb/ogkbd/internal/metrics"
	"ogkb/ogkbd/pkg/httpx"
)

type storageUsage struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
}

type summary struct {
	Storage   *storageUsage     `json:"storage"`
	Libraries []catalog.Summary `json:"libraries"`
}

type indexView struct {
	Title     string
	Storage   *storageUsage
	Libraries []catalog.Summary
}

// storage reports usage of the filesystem holding the media root, nil when
// it cannot be measured.
func (s *Server) storage() *storageUsage {
	u, err := disk.Usage(s.cfg.MediaRoot)
	if err != nil {
		s.log.Debug().Err(err).Str("path", s.cfg.MediaRoot).Msg("disk usage")
		return nil
	}
	return &storageUsage{Path: u.Path, Total: u.Total, Free: u.Free, Used: u.Used, UsedPercent: u.UsedPercent}
}

func (s *Server) summarize() summary {
	return summary{Storage: s.storage(), Libraries: s.catalog.Summaries()}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sum := s.summarize()
	s.render(w, "index", indexView{Title: "Home", Storage: sum.Storage, Libraries: sum.Libraries})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, s.summarize())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "version": metrics.Version})
}
