package web

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/strandworks/strand/internal/agent"
	"github.com/strandworks/strand/internal/llm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Same-origin policy is the UI's concern; the gateway accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame is one server-pushed event. Types: connected, thinking,
// tool_call, tool_result, step, token_usage, message, complete, error.
type wsFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type wsClientMessage struct {
	Message string `json:"message"`
}

// HandleWS serves /ws/chat/{session_id}. Each text frame from the
// client runs one agent turn; events stream back in the order the
// recorder sees them, ending with a complete (or error) frame.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/ws/chat/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		http.Error(w, "Bad session id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sess, err := g.getOrCreate(sessionID)
	if err != nil {
		conn.WriteJSON(wsFrame{Type: "error", Data: map[string]string{"error": "session setup failed"}})
		return
	}

	conn.WriteJSON(wsFrame{Type: "connected", Data: map[string]string{"session_id": sess.ID}})

	for {
		var req wsClientMessage
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[WS] Read error on %s: %v", sess.ID, err)
			}
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" {
			conn.WriteJSON(wsFrame{Type: "error", Data: map[string]string{"error": "empty message"}})
			continue
		}
		g.runStreaming(r, conn, sess, req.Message)
	}
}

// runStreaming runs one agent turn with hooks wired to the socket. The
// run is synchronous, so hook writes never race the complete frame.
func (g *Gateway) runStreaming(r *http.Request, conn *websocket.Conn, sess *Session, message string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	a := sess.Agent
	a.CurrentStep = 0

	send := func(frame wsFrame) {
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("[WS] Write error on %s: %v", sess.ID, err)
		}
	}

	a.Hooks = agent.Hooks{
		OnMessage: func(msg llm.Message) {
			if msg.Role == llm.RoleAssistant && msg.Content != "" {
				send(wsFrame{Type: "thinking", Data: map[string]string{"content": msg.Content}})
			}
			send(wsFrame{Type: "message", Data: msg.ToMap()})
		},
		OnStep: func(step, maxSteps int) {
			send(wsFrame{Type: "step", Data: map[string]int{"step": step, "max_steps": maxSteps}})
		},
		OnToolCall: func(name, arguments string) {
			send(wsFrame{Type: "tool_call", Data: map[string]string{"name": name, "arguments": arguments}})
		},
		OnToolResult: func(name, output string, isError bool) {
			send(wsFrame{Type: "tool_result", Data: map[string]any{
				"name":     name,
				"output":   output,
				"is_error": isError,
			}})
		},
	}
	defer func() { a.Hooks = agent.Hooks{} }()

	_, runErr := a.Run(r.Context(), message)

	if a.Provider != nil {
		send(wsFrame{Type: "token_usage", Data: map[string]int64{
			"input_tokens":      a.Provider.TotalInputTokens(),
			"completion_tokens": a.Provider.TotalCompletionTokens(),
		}})
	}

	if runErr != nil {
		send(wsFrame{Type: "error", Data: map[string]string{"error": runErr.Error()}})
		return
	}
	send(wsFrame{Type: "complete", Data: a.LastRunSummary()})
}
