// Package server exposes the research pipeline over a websocket for a
// browser front end.
package server

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/velding/newsrag/pkg/research"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the frame exchanged with the browser. Client types are
// "process" (newline-separated URLs) and "ask" (a question); server types
// are status, warning, answer, sources and error.
type Message struct {
	Type    string   `json:"type"`
	Content string   `json:"content"`
	List    []string `json:"list,omitempty"`
}

type WSServer struct {
	mu         sync.Mutex // one pipeline action at a time
	researcher *research.Researcher
}

func NewWSServer(researcher *research.Researcher) *WSServer {
	return &WSServer{researcher: researcher}
}

func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (s *WSServer) ListenAndServe(port string) error {
	log.Printf("Starting WebSocket server on port %s", port)
	return http.ListenAndServe(":"+port, s.Handler())
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("Error reading message: %v", err)
			break
		}
		s.handleMessage(r.Context(), conn, msg)
	}
}

func (s *WSServer) handleMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Type {
	case "process":
		s.handleProcess(ctx, conn, msg.Content)
	case "ask":
		s.handleAsk(ctx, conn, msg.Content)
	default:
		s.send(conn, Message{Type: "error", Content: "unknown message type: " + msg.Type})
	}
}

func (s *WSServer) handleProcess(ctx context.Context, conn *websocket.Conn, content string) {
	var urls []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			urls = append(urls, line)
		}
	}

	if len(urls) == 0 {
		s.send(conn, Message{Type: "error", Content: "no URLs provided"})
		return
	}

	s.send(conn, Message{Type: "status", Content: "Processing URLs..."})

	report, err := s.researcher.ProcessURLs(ctx, urls)
	if report != nil {
		for _, warning := range report.Warnings {
			s.send(conn, Message{Type: "warning", Content: warning})
		}
	}
	if err != nil {
		s.send(conn, Message{Type: "error", Content: err.Error()})
		return
	}

	s.send(conn, Message{
		Type:    "status",
		Content: "URLs processed successfully, you can now ask questions",
		List:    report.IndexedURLs,
	})
}

func (s *WSServer) handleAsk(ctx context.Context, conn *websocket.Conn, question string) {
	if strings.TrimSpace(question) == "" {
		s.send(conn, Message{Type: "error", Content: "empty question"})
		return
	}

	answer, err := s.researcher.Ask(ctx, question)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: err.Error()})
		return
	}

	s.send(conn, Message{Type: "answer", Content: answer.Text})
	if len(answer.Sources) > 0 {
		s.send(conn, Message{Type: "sources", List: answer.Sources})
	}
}

func (s *WSServer) send(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}
