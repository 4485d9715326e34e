package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/thomsch1/deepresearch/api"
	"github.com/thomsch1/deepresearch/config"
	"github.com/thomsch1/deepresearch/research"
)

// wsMessageKind tags each frame written to the progress stream.
type wsMessageKind string

const (
	wsMessageProgress wsMessageKind = "progress"
	wsMessageResult   wsMessageKind = "result"
	wsMessageError    wsMessageKind = "error"
)

// wsMessage is the one frame shape sent over the stream. Exactly one of
// Progress/Result/Message is populated, per Kind.
type wsMessage struct {
	Kind     wsMessageKind       `json:"kind"`
	Progress *wsProgress         `json:"progress,omitempty"`
	Result   *api.ResearchResponse `json:"result,omitempty"`
	Message  string              `json:"message,omitempty"`
}

// wsProgress mirrors research.Event without ever carrying source contents,
// per Event's own documented contract.
type wsProgress struct {
	Kind      string `json:"event"`
	Phase     string `json:"phase"`
	LoopIndex int    `json:"loop_index"`
	Count     int    `json:"count"`
}

// ResearchStreamHandler serves the same research orchestration as
// ResearchHandler but pushes Session.Events over a WebSocket while the run
// is in flight, closing the connection with the final answer. It shares
// ResearchHandler's request validation and response shaping.
type ResearchStreamHandler struct {
	orchestrator *research.Orchestrator
	baseConfig   config.ResearchConfig
	logger       *zap.Logger
}

func NewResearchStreamHandler(orchestrator *research.Orchestrator, baseConfig config.ResearchConfig, logger *zap.Logger) *ResearchStreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchStreamHandler{orchestrator: orchestrator, baseConfig: baseConfig, logger: logger}
}

// HandleStream upgrades the connection, reads exactly one JSON
// api.ResearchRequest frame, runs the session, and relays every
// Session.Events notification as a progress frame until the run completes.
func (h *ResearchStreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	if h.orchestrator == nil {
		h.writeJSON(ctx, conn, wsMessage{Kind: wsMessageError, Message: "research orchestrator is not configured (no reasoning model at startup)"})
		conn.Close(websocket.StatusNormalClosure, "unconfigured")
		return
	}

	var req api.ResearchRequest
	if err := h.readRequest(ctx, conn, &req); err != nil {
		h.writeJSON(ctx, conn, wsMessage{Kind: wsMessageError, Message: err.Error()})
		conn.Close(websocket.StatusUnsupportedData, "invalid request")
		return
	}

	if verr := validateResearchRequest(&req); verr != nil {
		h.writeJSON(ctx, conn, wsMessage{Kind: wsMessageError, Message: verr.Message})
		conn.Close(websocket.StatusUnsupportedData, "invalid request")
		return
	}

	minTier, qualityThreshold, filteringApplied := resolveFilters(&req, h.baseConfig)
	params := research.NewParams(
		h.baseConfig,
		req.InitialSearchQueryCount,
		req.MaxResearchLoops,
		req.ReasoningModel,
		minTier,
		qualityThreshold,
		req.EnhancedFiltering,
	)
	session := research.NewSession(research.NewSessionID(), req.Question, params)

	drainDone := make(chan struct{})
	go h.drainEvents(ctx, conn, session, drainDone)

	answer, err := h.orchestrator.Run(ctx, session)
	<-drainDone

	if err != nil {
		h.writeJSON(ctx, conn, wsMessage{Kind: wsMessageError, Message: "research session failed"})
		conn.Close(websocket.StatusInternalError, "research session failed")
		return
	}

	resp := buildResponse(session, answer, filteringApplied)
	h.writeJSON(ctx, conn, wsMessage{Kind: wsMessageResult, Result: &resp})
	conn.Close(websocket.StatusNormalClosure, "done")
}

func (h *ResearchStreamHandler) readRequest(ctx context.Context, conn *websocket.Conn, req *api.ResearchRequest) error {
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, data, err := conn.Read(readCtx)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(req)
}

// drainEvents forwards session.Events as progress frames until the channel
// is closed or ctx is done, then signals done. Session.Events is never
// closed by the Orchestrator, so this goroutine exits once Run returns and
// the caller stops reading — a short, bounded race is acceptable since
// Emit's send is itself non-blocking and best-effort.
func (h *ResearchStreamHandler) drainEvents(ctx context.Context, conn *websocket.Conn, session *research.Session, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-session.Events:
			if !ok {
				return
			}
			h.writeJSON(ctx, conn, wsMessage{Kind: wsMessageProgress, Progress: &wsProgress{
				Kind:      string(ev.Kind),
				Phase:     string(ev.Phase),
				LoopIndex: ev.LoopIndex,
				Count:     ev.Count,
			}})
			if ev.Kind == research.EventFinalizing {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *ResearchStreamHandler) writeJSON(ctx context.Context, conn *websocket.Conn, msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
	}
}
