package ipc

import (
	"encoding/json"
	"fmt"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandQueryState  CommandType = "QUERY_STATE"
	CommandFocus       CommandType = "FOCUS"
	CommandMove        CommandType = "MOVE"
	CommandSwap        CommandType = "SWAP"
	CommandResize      CommandType = "RESIZE"
	CommandWorkspace   CommandType = "WORKSPACE"
	CommandToggleFloat CommandType = "TOGGLE_FLOAT"
	CommandSetLayout   CommandType = "SET_LAYOUT"
	CommandReload      CommandType = "RELOAD"
	CommandSaveExit    CommandType = "SAVE_EXIT"
	CommandSubscribe   CommandType = "SUBSCRIBE"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// FocusPayload targets either a specific window or a direction relative to
// the focused one.
type FocusPayload struct {
	WindowID  uint32 `json:"window_id,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// MovePayload moves a window (0 means the focused one) to a workspace.
type MovePayload struct {
	WindowID  uint32 `json:"window_id,omitempty"`
	Workspace string `json:"workspace"`
}

type SwapPayload struct {
	Direction string `json:"direction"`
}

type ResizePayload struct {
	Direction string  `json:"direction"`
	Amount    float64 `json:"amount,omitempty"`
}

// WorkspacePayload switches the visible workspace. Display -1 targets the
// display of the focused workspace.
type WorkspacePayload struct {
	Name    string `json:"name"`
	Display int    `json:"display"`
}

type ToggleFloatPayload struct {
	WindowID uint32 `json:"window_id,omitempty"`
}

type SetLayoutPayload struct {
	Workspace string `json:"workspace,omitempty"`
	Mode      string `json:"mode"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
