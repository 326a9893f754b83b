package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/couchcryptid/storm-radar-overlay/internal/fetch"
)

// handleProxy serves ?url= through the offline-first dispatcher for the
// allowed hosts only. The
// X-Cache-Source header names what answered: cache, network, placeholder
// or offline.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}

	u, err := url.Parse(target)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}
	if _, ok := s.proxyHosts[strings.ToLower(u.Hostname())]; !ok {
		writeError(w, http.StatusForbidden, "host not allowed: "+u.Hostname())
		return
	}

	resp, err := s.deps.Proxy.Fetch(r.Context(), target)
	if err != nil {
		s.logger.Debug("proxy fetch failed", "url", target, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set("X-Cache-Source", string(resp.Source))
	w.Header().Set("X-Resource-Class", resp.Class.String())
	if resp.Source == fetch.SourcePlaceholder || resp.Source == fetch.SourceOffline {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		s.logger.Debug("proxy response write failed", "url", target, "error", err)
	}
}
