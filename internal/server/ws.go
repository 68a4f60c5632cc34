package server

import (
	"net/http"
	"time"

	"arbfinder/internal/finder"
	"arbfinder/internal/slippage"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// idleWait closes connections that send nothing for this long.
	idleWait = 5 * time.Minute
)

// wsError is sent back when a message cannot be processed.
type wsError struct {
	Error string `json:"error"`
}

// handleWebSocket answers each DetectRequest message with a DetectResponse
// until the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxBodySize)
	ctx := r.Context()

	for {
		conn.SetReadDeadline(time.Now().Add(idleWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("WebSocket read failed")
			}
			return
		}

		var reply any
		req, quotes, err := parseDetectRequest(data)
		if err == nil {
			var res *finder.Result
			if req.Live {
				res, err = s.runLive(ctx, req.SlippagePct)
			} else {
				res, err = s.finder.Run(ctx, finder.Request{
					Quotes:           quotes,
					SlippageFraction: slippage.FromPercent(req.SlippagePct),
					Source:           finder.SourceManual,
				})
			}
			if err == nil {
				resp := newDetectResponse(res)
				if req.Live {
					resp.Rates = res.Rates
				}
				reply = resp
			}
		}
		if err != nil {
			reply = wsError{Error: err.Error()}
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn().Err(err).Msg("Failed to write to WebSocket")
			return
		}
	}
}
