package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/coder/websocket"

	"github.com/MrWong99/werkit/internal/eval"
	"github.com/MrWong99/werkit/internal/observe"
)

// handleStream scores one item per text message for as long as the client
// keeps the connection open. Malformed messages are answered with an error
// message and do not end the stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Debug("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	if s.maxBody > 0 {
		conn.SetReadLimit(s.maxBody)
	}

	ctx := r.Context()
	log := observe.Logger(ctx)

	var tally eval.Tally
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				log.Debug("stream closed", "err", err)
			}
			return
		}

		resp, err := s.scoreMessage(ctx, typ, data, &tally)
		if err != nil {
			s.metrics.RecordScore(ctx, observe.OpEvaluate, "error", 0)
			resp = streamResponse{CorpusWER: tally.CorpusWER(), Error: err.Error()}
		}
		if err := writeMessage(ctx, conn, resp); err != nil {
			log.Debug("stream write failed", "err", err)
			return
		}
	}
}

// scoreMessage decodes and evaluates one stream message, folding the result
// into tally.
func (s *Server) scoreMessage(ctx context.Context, typ websocket.MessageType, data []byte, tally *eval.Tally) (streamResponse, error) {
	if typ != websocket.MessageText {
		return streamResponse{}, errors.New("messages must be JSON text")
	}

	var req streamRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return streamResponse{}, fmt.Errorf("invalid message: %w", err)
	}

	st := s.settings.Load()
	if err := st.checkSize(req.comparisons()...); err != nil {
		return streamResponse{}, err
	}
	limit, cs, err := st.resolve(req.overrides)
	if err != nil {
		return streamResponse{}, err
	}
	if req.ID == "" {
		req.ID = strconv.Itoa(tally.Count + 1)
	}

	ev := eval.New(
		eval.WithMergeLimit(limit),
		eval.WithCaseSensitive(cs),
		eval.WithPhonetic(st.phonetic),
		eval.WithMetrics(s.metrics),
	)
	res := ev.Evaluate(ctx, req.Item)
	tally.Add(res)

	return streamResponse{
		ItemResult: &res,
		Seq:        tally.Count,
		CorpusWER:  tally.CorpusWER(),
	}, nil
}

func writeMessage(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
