package socketrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/snapvault/internal/model"
)

// Client talks to a Server over a Unix domain socket using JSON-RPC 2.0.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
}

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	return &Client{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs a JSON-RPC call and unmarshals the result into dest.
func (c *Client) call(method string, params any, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	var paramsData json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("socketrpc: marshal params: %w", err)
		}
		paramsData = data
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	c.conn.SetDeadline(time.Now().Add(30 * time.Second))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("socketrpc: send: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("socketrpc: read: %w", err)
		}
		return fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != id {
		return fmt.Errorf("socketrpc: response id %d, want %d", resp.ID, id)
	}

	if resp.Error != nil {
		return resp.Error
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) Status() (model.Status, error) {
	var result model.Status
	err := c.call("Status", nil, &result)
	return result, err
}

// TriggerBackup asks the daemon to start a run. It reports false when a run
// is already in flight.
func (c *Client) TriggerBackup() (bool, error) {
	var result TriggerResult
	err := c.call("TriggerBackup", nil, &result)
	return result.Started, err
}

func (c *Client) RecentRuns(limit int) ([]model.RunRecord, error) {
	var result []model.RunRecord
	err := c.call("RecentRuns", map[string]any{"Limit": limit}, &result)
	return result, err
}

func (c *Client) ListArchives() ([]model.ArchiveInfo, error) {
	var result []model.ArchiveInfo
	err := c.call("ListArchives", nil, &result)
	return result, err
}

func (c *Client) GetSettings() (model.Settings, error) {
	var result model.Settings
	err := c.call("GetSettings", nil, &result)
	return result, err
}

func (c *Client) UpdateSettings(patch model.SettingsPatch) (model.Settings, error) {
	var result model.Settings
	err := c.call("UpdateSettings", patch, &result)
	return result, err
}
