package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"tradeproof/pkg/types"

	"github.com/sirupsen/logrus"
)

// success writes {"success": true, ...fields}.
func (s *Service) success(w http.ResponseWriter, fields map[string]any) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true

	s.writeJSON(w, http.StatusOK, body)
}

// failure writes {"error": message} with a 500 for every kind of error.
// Clients read the message, not the status.
func (s *Service) failure(w http.ResponseWriter, r *http.Request, err error) {
	kind := types.KindOf(err)

	entry := s.logger.WithError(err).WithFields(logrus.Fields{
		"path": r.URL.Path,
		"kind": kind.String(),
	})
	if requestID, ok := r.Context().Value(contextKeyRequestID).(string); ok {
		entry = entry.WithField("request_id", requestID)
	}

	switch kind {
	case types.KindInternal, types.KindStorage:
		entry.Error("request failed")
	default:
		entry.Info("request rejected")
	}

	s.writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": types.PublicMessage(err),
	})
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

func (s *Service) writeFile(w http.ResponseWriter, contentType, filename string, body []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(filename, `"`, "")+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.WithError(err).Warn("failed to write file response")
	}
}

func requestMeta(r *http.Request) types.RequestMeta {
	ip := ""
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		ip = strings.TrimSpace(first)
	}
	if ip == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}

	return types.RequestMeta{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}
