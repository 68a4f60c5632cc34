package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"arbfinder/internal/finder"
	"arbfinder/internal/rates"
	"arbfinder/internal/slippage"

	"github.com/rs/zerolog/log"
)

// DetectRequest is the body of POST /api/detect and of websocket messages.
type DetectRequest struct {
	Rates       json.RawMessage `json:"rates"`
	SlippagePct float64         `json:"slippage_pct"`

	// Live fetches rates from the feed instead of using Rates (websocket only)
	Live bool `json:"live,omitempty"`
}

// DetectResponse reports the outcome of one detection run.
type DetectResponse struct {
	Found        bool            `json:"found"`
	Cycle        []string        `json:"cycle"`
	ProfitFactor float64         `json:"profit_factor,omitempty"`
	Path         string          `json:"path,omitempty"`
	Message      string          `json:"message"`
	RunID        string          `json:"run_id"`
	SnapshotID   string          `json:"snapshot_id,omitempty"`
	Nodes        int             `json:"nodes"`
	Edges        int             `json:"edges"`
	Rates        rates.RateTable `json:"rates,omitempty"`
}

func newDetectResponse(res *finder.Result) DetectResponse {
	resp := DetectResponse{
		Found:      res.Found,
		Message:    res.Message(),
		RunID:      res.RunID,
		SnapshotID: res.SnapshotID,
		Nodes:      res.Nodes,
		Edges:      res.Edges,
	}
	if res.Cycle != nil {
		resp.Cycle = res.Cycle.Path
		resp.ProfitFactor = res.Cycle.ProfitFactor
		resp.Path = res.Cycle.String()
	}
	return resp
}

// errBadRequest marks errors caused by client input.
var errBadRequest = errors.New("bad request")

func parseDetectRequest(data []byte) (DetectRequest, []rates.Quote, error) {
	var req DetectRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, nil, fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}

	if err := checkSlippagePct(req.SlippagePct); err != nil {
		return req, nil, err
	}

	if req.Live {
		return req, nil, nil
	}

	if len(bytes.TrimSpace(req.Rates)) == 0 || string(bytes.TrimSpace(req.Rates)) == "null" {
		return req, nil, fmt.Errorf("%w: rates is required", errBadRequest)
	}

	quotes, err := rates.DecodeJSON(bytes.NewReader(req.Rates))
	if err != nil {
		return req, nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return req, quotes, nil
}

func checkSlippagePct(pct float64) error {
	if !(pct >= 0 && pct <= slippage.MaxPercent) {
		return fmt.Errorf("%w: slippage_pct must be between 0 and %g", errBadRequest, slippage.MaxPercent)
	}
	return nil
}

var (
	// errFeedUnavailable is returned for live requests when no feed is configured.
	errFeedUnavailable = errors.New("live feed not configured")
	errFeedFailed      = errors.New("fetching live rates")
)

func (s *Server) runLive(ctx context.Context, pct float64) (*finder.Result, error) {
	if s.feed == nil {
		return nil, errFeedUnavailable
	}

	table, err := s.feed.FetchRates(ctx, s.cfg.Assets)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errFeedFailed, err)
	}

	return s.finder.Run(ctx, finder.Request{
		Quotes:           table.Quotes(),
		SlippageFraction: slippage.FromPercent(pct),
		Source:           finder.SourceLive,
	})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}

	req, quotes, err := parseDetectRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Live {
		writeError(w, http.StatusBadRequest, "live requests use GET /api/live")
		return
	}

	res, err := s.finder.Run(r.Context(), finder.Request{
		Quotes:           quotes,
		SlippageFraction: slippage.FromPercent(req.SlippagePct),
		Source:           finder.SourceManual,
	})
	if err != nil {
		log.Error().Err(err).Msg("Detection failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, newDetectResponse(res))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	pct := 0.0
	if v := r.URL.Query().Get("slippage_pct"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "slippage_pct must be a number")
			return
		}
		pct = parsed
	}
	if err := checkSlippagePct(pct); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.runLive(r.Context(), pct)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	resp := newDetectResponse(res)
	resp.Rates = res.Rates
	writeJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, finder.ErrInvalidSlippage):
		return http.StatusBadRequest
	case errors.Is(err, errFeedUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, errFeedFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
