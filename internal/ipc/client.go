package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/quiltwm/quilt/internal/reactor"
	"github.com/quiltwm/quilt/internal/runtimepath"
)

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}

	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Status == "ERROR" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}

	return &resp, nil
}

func (c *Client) sendPayload(cmd CommandType, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	_, err = c.sendRequest(&Request{Command: cmd, Payload: data})
	return err
}

// QueryState retrieves the full daemon state summary.
func (c *Client) QueryState() (*reactor.StateSummary, error) {
	resp, err := c.sendRequest(&Request{Command: CommandQueryState})
	if err != nil {
		return nil, err
	}

	var state reactor.StateSummary
	if err := json.Unmarshal(resp.Data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state data: %w", err)
	}
	return &state, nil
}

// FocusWindow focuses a specific window by id.
func (c *Client) FocusWindow(id uint32) error {
	return c.sendPayload(CommandFocus, FocusPayload{WindowID: id})
}

// FocusDirection moves focus in a direction: left, right, up, or down.
func (c *Client) FocusDirection(direction string) error {
	return c.sendPayload(CommandFocus, FocusPayload{Direction: direction})
}

// Move sends a window (0 means the focused one) to a workspace.
func (c *Client) Move(windowID uint32, workspace string) error {
	return c.sendPayload(CommandMove, MovePayload{WindowID: windowID, Workspace: workspace})
}

// Swap exchanges the focused window with its neighbor in a direction.
func (c *Client) Swap(direction string) error {
	return c.sendPayload(CommandSwap, SwapPayload{Direction: direction})
}

// Resize adjusts the focused window's share in a direction.
func (c *Client) Resize(direction string, amount float64) error {
	return c.sendPayload(CommandResize, ResizePayload{Direction: direction, Amount: amount})
}

// SwitchWorkspace makes a workspace visible. Display -1 targets the display
// of the focused workspace.
func (c *Client) SwitchWorkspace(name string, display int) error {
	return c.sendPayload(CommandWorkspace, WorkspacePayload{Name: name, Display: display})
}

// ToggleFloat flips a window (0 means the focused one) between tiled and
// floating.
func (c *Client) ToggleFloat(windowID uint32) error {
	return c.sendPayload(CommandToggleFloat, ToggleFloatPayload{WindowID: windowID})
}

// SetLayout changes a workspace's layout mode ("tiling" or "bsp"). An empty
// workspace name targets the focused workspace.
func (c *Client) SetLayout(workspace, mode string) error {
	return c.sendPayload(CommandSetLayout, SetLayoutPayload{Workspace: workspace, Mode: mode})
}

// Reload sends a RELOAD command to the daemon
func (c *Client) Reload() error {
	_, err := c.sendRequest(&Request{Command: CommandReload})
	return err
}

// SaveExit asks the daemon to persist its state and shut down.
func (c *Client) SaveExit() error {
	_, err := c.sendRequest(&Request{Command: CommandSaveExit})
	return err
}

// Subscribe opens a streaming connection and invokes fn for every broadcast
// until the connection closes or fn returns false.
func (c *Client) Subscribe(fn func(reactor.Broadcast) bool) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	req, err := json.Marshal(&Request{Command: CommandSubscribe})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := conn.Write(append(req, '\n')); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)

	// First line acknowledges the subscription.
	ack, err := reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("failed to read subscribe ack: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(ack, &resp); err != nil {
		return fmt.Errorf("failed to parse subscribe ack: %w", err)
	}
	if resp.Status == "ERROR" {
		return fmt.Errorf("daemon error: %s", resp.Error)
	}

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return nil
		}
		var b reactor.Broadcast
		if err := json.Unmarshal(line, &b); err != nil {
			continue
		}
		if !fn(b) {
			return nil
		}
	}
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	_, err := c.QueryState()
	return err
}
