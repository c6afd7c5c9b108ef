package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes the backup engine over a Unix domain socket
// for local clients such as the TUI.
//
//   Method            Params                               Result
//   ──────────────    ─────────────────────────────────    ──────────────────
//   Status            (none)                               Status
//   TriggerBackup     (none)                               {Started: bool}
//   RecentRuns        {Limit: int}                         []RunRecord
//   ListArchives      (none)                               []ArchiveInfo
//   GetSettings       (none)                               Settings
//   UpdateSettings    SettingsPatch                        Settings
//
// RecentRuns accepts empty or null params; Limit <= 0 means the default.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params (including settings that fail validation)
//   -32603  Internal error (marshal failure)
//   -32000  Application error (store or filesystem failure)

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// TriggerResult is the result of TriggerBackup.
type TriggerResult struct {
	Started bool `json:"started"`
}

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/snapvault/snapvault.sock, falling back to
// ~/.local/state/snapvault/snapvault.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "snapvault", "snapvault.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/snapvault.sock"
	}
	return filepath.Join(home, ".local", "state", "snapvault", "snapvault.sock")
}
