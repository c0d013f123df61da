package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/logging"
	"github.com/xtxerr/atmolog/internal/storage/export"
)

// =============================================================================
// Response helpers
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	data, _ := json.Marshal(map[string]string{"error": msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	w.Write([]byte("\n"))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), log).Warn("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

// points parses the optional points parameter. Absent means zero.
func points(r *http.Request) (int, error) {
	v := r.URL.Query().Get("points")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: points must be a non-negative integer", errors.ErrInvalidArgument)
	}
	return n, nil
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.backend.Stats()
	status := "ok"
	if !st.StorageAvailable {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"service": "atmolog",
		"version": s.cfg.Version,
		"storage": st.StorageAvailable,
	})
}

// handleReadings serves the full export as a download. CSV is the default.
func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	f, err := export.ParseFormat(r.URL.Query().Get("format"), export.FormatCSV)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeExport(w, r, f, true, func(buf io.Writer) error {
		_, err := s.backend.WriteFull(buf, f)
		return err
	})
}

// handleWindow serves the newest points readings. JSON is the default.
func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	f, err := export.ParseFormat(r.URL.Query().Get("format"), export.FormatJSON)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	k, err := points(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeExport(w, r, f, false, func(buf io.Writer) error {
		_, err := s.backend.WriteWindow(buf, f, k)
		return err
	})
}

// writeExport streams row formats straight to the client. Parquet is
// buffered because its footer is written last.
func (s *Server) writeExport(w http.ResponseWriter, r *http.Request, f export.Format, attachment bool, fill func(io.Writer) error) {
	header := func(length int) {
		w.Header().Set("Content-Type", f.ContentType())
		if length >= 0 {
			w.Header().Set("Content-Length", strconv.Itoa(length))
		}
		if attachment {
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="readings.%s"`, f.FileExtension()))
		}
		w.WriteHeader(http.StatusOK)
	}

	if !f.Streamable() {
		var buf bytes.Buffer
		if err := fill(&buf); err != nil {
			s.fail(w, r, err)
			return
		}
		header(buf.Len())
		w.Write(buf.Bytes())
		return
	}

	out := &streamWriter{w: w, start: func() { header(-1) }}
	err := fill(out)
	switch {
	case err != nil && !out.started:
		s.fail(w, r, err)
	case err != nil:
		// Status is already sent; cut the body short.
		logging.WithContext(r.Context(), log).Warn("export aborted", "format", f.String(), "error", err)
	case !out.started:
		header(0)
	}
}

// streamWriter sends the response header on the first write.
type streamWriter struct {
	w       io.Writer
	start   func()
	started bool
}

func (sw *streamWriter) Write(p []byte) (int, error) {
	if !sw.started {
		sw.started = true
		sw.start()
	}
	return sw.w.Write(p)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Aggregate())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	k, err := points(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sum, err := s.backend.Summary(r.Context(), k)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleSQL(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxSQLBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "query too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sql := strings.TrimSpace(string(body))
	if sql == "" {
		s.fail(w, r, fmt.Errorf("%w: empty query", errors.ErrInvalidArgument))
		return
	}

	res, err := s.backend.ExecuteSQL(r.Context(), sql)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	cleared := s.backend.Clear()
	status := http.StatusOK
	if !cleared {
		status = http.StatusInternalServerError
	}
	logging.WithContext(r.Context(), log).Info("clear requested", "cleared", cleared)
	writeJSON(w, status, map[string]bool{"cleared": cleared})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Stats())
}
