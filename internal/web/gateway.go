// Package web exposes agent sessions over HTTP and a WebSocket
// streaming channel.
package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strandworks/strand/internal/agent"
	"github.com/strandworks/strand/internal/llm"
	"github.com/strandworks/strand/internal/record"
)

const (
	maxRequestBody  = 1 << 20 // 1 MB
	maxMessageRunes = 20000
)

// AgentFactory builds a fresh agent for a new session. The caller wires
// the tool registry and provider; the gateway only owns the lifecycle.
type AgentFactory func() *agent.ToolCallAgent

// Session binds one agent and its run recorder behind a mutex. One
// request at a time per session; sessions are independent.
type Session struct {
	ID       string
	Agent    *agent.ToolCallAgent
	Recorder *record.Recorder

	mu       sync.Mutex
	lastUsed time.Time
}

// Gateway is a thread-safe session registry with TTL eviction. Not
// designed for multi-replica deployments; one process owns all sessions.
type Gateway struct {
	factory AgentFactory
	logDir  string
	model   string
	ttl     time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	done     chan struct{}
}

// NewGateway creates a gateway. A background goroutine evicts sessions
// idle longer than ttl; call Close to stop it and tear everything down.
func NewGateway(factory AgentFactory, logDir, model string, ttl time.Duration) *Gateway {
	if ttl < time.Second {
		ttl = time.Second
	}
	g := &Gateway{
		factory:  factory,
		logDir:   logDir,
		model:    model,
		ttl:      ttl,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	go g.cleanupLoop()
	return g
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// getOrCreate returns the session for id, creating it (with a fresh
// agent and recorder) when absent. An empty id always creates.
func (g *Gateway) getOrCreate(id string) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id != "" {
		if sess, ok := g.sessions[id]; ok {
			sess.lastUsed = time.Now()
			return sess, nil
		}
	}
	if id == "" {
		id = newSessionID()
	}

	rec, err := record.NewRecorder(g.logDir, id)
	if err != nil {
		return nil, err
	}
	a := g.factory()
	a.Recorder = rec

	sess := &Session{ID: id, Agent: a, Recorder: rec, lastUsed: time.Now()}
	g.sessions[id] = sess
	log.Printf("[Gateway] Created session %s", id)
	return sess, nil
}

// get returns an existing session or nil.
func (g *Gateway) get(id string) *Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sessions[id]
}

// Count returns the number of active sessions.
func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// Close stops the cleanup goroutine and destroys every session.
func (g *Gateway) Close() {
	select {
	case <-g.done:
	default:
		close(g.done)
	}

	g.mu.Lock()
	sessions := g.sessions
	g.sessions = make(map[string]*Session)
	g.mu.Unlock()

	for _, sess := range sessions {
		destroySession(sess)
	}
}

// destroySession releases agent resources before the recorder so tool
// teardown is still recorded.
func destroySession(sess *Session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.Agent.Registry != nil {
		sess.Agent.Registry.CloseAll()
	}
	if err := sess.Recorder.Close(); err != nil {
		log.Printf("[Gateway] Close recorder for %s: %v", sess.ID, err)
	}
}

func (g *Gateway) cleanupLoop() {
	ticker := time.NewTicker(g.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-g.ttl)
			var expired []*Session
			g.mu.Lock()
			for id, sess := range g.sessions {
				if sess.lastUsed.Before(cutoff) {
					delete(g.sessions, id)
					expired = append(expired, sess)
				}
			}
			g.mu.Unlock()
			for _, sess := range expired {
				log.Printf("[Gateway] Evicting idle session %s", sess.ID)
				destroySession(sess)
			}
		}
	}
}

// ── HTTP handlers ──

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []map[string]any  `json:"messages"`
	Summary   *agent.RunSummary `json:"summary,omitempty"`
	Logs      []string          `json:"logs"`
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

type statusResponse struct {
	Status    string `json:"status"`
	Connected int    `json:"connected"`
	Model     string `json:"model"`
}

// HandleChat runs one agent turn: POST {message, session_id?} returns
// {session_id, messages, summary, logs} where messages are only the
// ones this turn appended.
func (g *Gateway) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request body", http.StatusBadRequest)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		http.Error(w, "Empty message", http.StatusBadRequest)
		return
	}
	if len([]rune(req.Message)) > maxMessageRunes {
		http.Error(w, "Message too long", http.StatusRequestEntityTooLarge)
		return
	}

	sess, err := g.getOrCreate(req.SessionID)
	if err != nil {
		log.Printf("[Gateway] Create session: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	a := sess.Agent
	a.CurrentStep = 0

	// Collect this turn's messages from the append hook rather than by
	// slicing memory afterwards: mid-run compaction may rewrite memory
	// to fewer messages than existed before the run.
	appended := []map[string]any{}
	var logs []string
	a.Hooks = agent.Hooks{
		OnMessage: func(msg llm.Message) {
			appended = append(appended, msg.ToMap())
		},
		OnStep: func(step, maxSteps int) {
			logs = append(logs, fmt.Sprintf("step %d/%d", step, maxSteps))
		},
		OnToolCall: func(name, arguments string) {
			logs = append(logs, fmt.Sprintf("tool_call %s %s", name, arguments))
		},
		OnToolResult: func(name, output string, isError bool) {
			if isError {
				logs = append(logs, "tool_error "+name)
			} else {
				logs = append(logs, "tool_result "+name)
			}
		},
	}
	defer func() { a.Hooks = agent.Hooks{} }()

	if _, err := a.Run(r.Context(), req.Message); err != nil {
		log.Printf("[Gateway] Run error on %s: %v", sess.ID, err)
	}

	if logs == nil {
		logs = []string{}
	}

	writeJSON(w, chatResponse{
		SessionID: sess.ID,
		Messages:  appended,
		Summary:   a.LastRunSummary(),
		Logs:      logs,
	})
}

// HandleReset clears a session's agent back to a fresh state.
func (g *Gateway) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		http.Error(w, "Bad request body", http.StatusBadRequest)
		return
	}

	sess := g.get(req.SessionID)
	if sess == nil {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	sess.mu.Lock()
	sess.Agent.Reset()
	sess.Agent.Memory.Clear()
	sess.mu.Unlock()

	writeJSON(w, map[string]bool{"reset": true})
}

// HandleStatus reports gateway health.
func (g *Gateway) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, statusResponse{
		Status:    "ok",
		Connected: g.Count(),
		Model:     g.model,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Gateway] Write response: %v", err)
	}
}
