package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/quiltwm/quilt/internal/layout"
	"github.com/quiltwm/quilt/internal/platform"
	"github.com/quiltwm/quilt/internal/reactor"
	"github.com/quiltwm/quilt/internal/runtimepath"
)

// Server handles IPC requests from clients. Every command is forwarded to the
// reactor; the server itself holds no window state.
type Server struct {
	socketPath   string
	listener     net.Listener
	rx           *reactor.Reactor
	reload       func() error
	logger       *slog.Logger
	shuttingDown bool
	shutdownMu   sync.Mutex
}

// NewServer creates a new IPC server. reload is invoked on RELOAD to re-read
// the configuration from disk and hand it to the reactor.
func NewServer(rx *reactor.Reactor, reload func() error, logger *slog.Logger) (*Server, error) {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
	}

	// Remove existing socket if present
	os.Remove(socketPath)

	return &Server{
		socketPath: socketPath,
		rx:         rx,
		reload:     reload,
		logger:     logger,
	}, nil
}

// Start begins listening for IPC connections
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", "socket", s.socketPath)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			if s.shuttingDown {
				s.shutdownMu.Unlock()
				return
			}
			s.shutdownMu.Unlock()
			s.logger.Warn("IPC accept error", "error", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection handles a single IPC connection. SUBSCRIBE keeps the
// connection open and streams broadcasts; everything else is one
// request/response round trip.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Warn("IPC read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.sendError(conn, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	if req.Command == CommandSubscribe {
		s.streamBroadcasts(conn)
		return
	}

	resp := s.handleCommand(req)
	respData, err := resp.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal response", "error", err)
		return
	}
	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.logger.Warn("failed to send response", "error", err)
	}
}

func (s *Server) handleCommand(req *Request) *Response {
	switch req.Command {
	case CommandQueryState:
		return s.handleQueryState()
	case CommandFocus:
		return s.handleFocus(req.Payload)
	case CommandMove:
		return s.handleMove(req.Payload)
	case CommandSwap:
		return s.handleSwap(req.Payload)
	case CommandResize:
		return s.handleResize(req.Payload)
	case CommandWorkspace:
		return s.handleWorkspace(req.Payload)
	case CommandToggleFloat:
		return s.handleToggleFloat(req.Payload)
	case CommandSetLayout:
		return s.handleSetLayout(req.Payload)
	case CommandReload:
		return s.handleReload()
	case CommandSaveExit:
		return s.handleSaveExit()
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func (s *Server) handleQueryState() *Response {
	state, err := s.rx.QueryState()
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to query state: %v", err))
	}
	resp, err := NewOKResponse(state)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleFocus(payload json.RawMessage) *Response {
	var p FocusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid focus payload: %v", err))
	}
	var err error
	switch {
	case p.WindowID != 0:
		err = s.rx.FocusWindow(platform.WindowID(p.WindowID))
	case p.Direction != "":
		var dir reactor.Direction
		if dir, err = reactor.ParseDirection(p.Direction); err == nil {
			err = s.rx.FocusDirection(dir)
		}
	default:
		return NewErrorResponse("focus requires window_id or direction")
	}
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to focus: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleMove(payload json.RawMessage) *Response {
	var p MovePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid move payload: %v", err))
	}
	if p.Workspace == "" {
		return NewErrorResponse("workspace is required")
	}
	if err := s.rx.MoveToWorkspace(platform.WindowID(p.WindowID), p.Workspace); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to move window: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleSwap(payload json.RawMessage) *Response {
	var p SwapPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid swap payload: %v", err))
	}
	dir, err := reactor.ParseDirection(p.Direction)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	if err := s.rx.SwapDirection(dir); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to swap: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleResize(payload json.RawMessage) *Response {
	var p ResizePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid resize payload: %v", err))
	}
	dir, err := reactor.ParseDirection(p.Direction)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	amount := p.Amount
	if amount <= 0 {
		amount = 0.05
	}
	if err := s.rx.ResizeFocused(dir, amount); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to resize: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleWorkspace(payload json.RawMessage) *Response {
	var p WorkspacePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid workspace payload: %v", err))
	}
	if p.Name == "" {
		return NewErrorResponse("name is required")
	}
	if err := s.rx.SwitchWorkspace(p.Display, p.Name); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to switch workspace: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleToggleFloat(payload json.RawMessage) *Response {
	var p ToggleFloatPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return NewErrorResponse(fmt.Sprintf("Invalid toggle payload: %v", err))
		}
	}
	if err := s.rx.ToggleFloat(platform.WindowID(p.WindowID)); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to toggle float: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleSetLayout(payload json.RawMessage) *Response {
	var p SetLayoutPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid layout payload: %v", err))
	}
	mode, err := layout.ParseMode(p.Mode)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	if err := s.rx.SetLayoutMode(p.Workspace, mode); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to set layout: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleReload() *Response {
	s.logger.Info("IPC reload requested")
	if err := s.reload(); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to reload config: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleSaveExit() *Response {
	s.logger.Info("IPC save-and-exit requested")
	if err := s.rx.SaveAndExit(); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to save and exit: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

// streamBroadcasts writes one JSON line per reactor broadcast until the
// client disconnects or the reactor stops.
func (s *Server) streamBroadcasts(conn net.Conn) {
	events, cancel := s.rx.Subscribe()
	defer cancel()

	resp, _ := NewOKResponse(nil)
	data, _ := resp.Marshal()
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return
	}

	for {
		select {
		case <-s.rx.Stopped():
			return
		case b, ok := <-events:
			if !ok {
				return
			}
			line, err := json.Marshal(b)
			if err != nil {
				continue
			}
			if _, err := conn.Write(append(line, '\n')); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendError(conn net.Conn, errMsg string) {
	resp := NewErrorResponse(errMsg)
	data, _ := resp.Marshal()
	data = append(data, '\n')
	conn.Write(data)
}

// Stop gracefully shuts down the IPC server
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)
}
