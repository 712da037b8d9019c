package server

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/wakacard/pkg/buildinfo"
	"github.com/matzehuels/wakacard/pkg/errors"
	"github.com/matzehuels/wakacard/pkg/pipeline"
	"github.com/matzehuels/wakacard/pkg/stats"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		buildinfo.Info
	}{"ok", buildinfo.Current()})
}

// cardRequest is the POST /v1/cards body. Unknown top-level fields are
// rejected; the stats payload is decoded leniently.
type cardRequest struct {
	Username  string          `json:"username"`
	Stats     json.RawMessage `json:"stats"`
	AvatarURL string          `json:"avatar_url,omitempty"`
	NoAvatar  bool            `json:"no_avatar,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Variant   string          `json:"variant,omitempty"`
	Refresh   bool            `json:"refresh,omitempty"`
}

func (req cardRequest) options() (pipeline.Options, error) {
	opts := pipeline.Options{
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
		NoAvatar:  req.NoAvatar,
		Timestamp: req.Timestamp,
		Variant:   req.Variant,
		Refresh:   req.Refresh,
	}
	if len(req.Stats) > 0 && string(req.Stats) != "null" {
		p, err := stats.Decode(bytes.NewReader(req.Stats))
		if err != nil {
			return opts, err
		}
		opts.Stats = p
	}
	return opts, nil
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error:     "request body too large",
				Code:      string(errors.ErrCodeInvalidInput),
				RequestID: middleware.GetReqID(r.Context()),
			})
			return
		}
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request"))
		return
	}
	opts, err := req.options()
	if err == nil && opts.AvatarURL != "" {
		err = s.checkAvatarURL(opts.AvatarURL)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts.Logger = s.logger.With("request_id", middleware.GetReqID(r.Context()))

	res, err := s.Runner().Execute(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "image/png")
	h.Set("Content-Length", strconv.Itoa(len(res.PNG)))
	h.Set("X-Card-ID", res.CardID)
	if res.CacheHit {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.PNG)
}

// checkAvatarURL admits http(s) URLs on the configured avatar hosts.
func (s *Server) checkAvatarURL(raw string) error {
	if len(s.avatarHosts) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "avatar_url is not enabled on this server")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New(errors.ErrCodeInvalidInput, "avatar_url must be an http or https URL")
	}
	if !s.avatarHosts[strings.ToLower(u.Hostname())] {
		return errors.New(errors.ErrCodeInvalidInput, "avatar_url host %q is not allowed", u.Hostname())
	}
	return nil
}

// statusFor maps error codes to HTTP statuses.
func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidStats, errors.ErrCodeInvalidUsername:
		return http.StatusBadRequest
	case errors.ErrCodeNoData:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeNetwork:
		return http.StatusBadGateway
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := errors.UserMessage(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      string(errors.GetCode(err)),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
