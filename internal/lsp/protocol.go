// Package lsp answers the host's initialize handshake over JSON-RPC and
// replies with the launch descriptor for the language server.
package lsp

import (
	"encoding/json"

	"github.com/leapstack-labs/lspboot/internal/hostcap"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeRequestFailed  = -32803
)

// JSONRPCMessage represents a JSON-RPC 2.0 message.
type JSONRPCMessage struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *JSONRPCError    `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorData is attached to resolution failures.
type ErrorData struct {
	Kind   string `json:"kind"`
	Remedy string `json:"remedy,omitempty"`
}

// InitializeParams is the subset of the initialize payload the server reads.
type InitializeParams struct {
	ProcessID             *int                   `json:"processId"`
	RootURI               string                 `json:"rootUri,omitempty"`
	InitializationOptions *InitializationOptions `json:"initializationOptions,omitempty"`
}

// InitializationOptions is the plugin configuration forwarded by the host.
type InitializationOptions struct {
	ServerPath    string          `json:"serverPath,omitempty"`
	Configuration *Configuration  `json:"configuration,omitempty"`
	LanguageID    string          `json:"languageId,omitempty"`
	Pattern       string          `json:"pattern,omitempty"`
	Options       json.RawMessage `json:"options,omitempty"`
}

// Configuration is the nested settings block some hosts send.
type Configuration struct {
	ServerPath string `json:"serverPath,omitempty"`
}

// EffectiveServerPath returns the top-level serverPath, falling back to
// configuration.serverPath.
func (o *InitializationOptions) EffectiveServerPath() string {
	if o == nil {
		return ""
	}
	if o.ServerPath != "" {
		return o.ServerPath
	}
	if o.Configuration != nil {
		return o.Configuration.ServerPath
	}
	return ""
}

// ShowMessageParams for window/showMessage notification.
type ShowMessageParams struct {
	Type    hostcap.MessageType `json:"type"`
	Message string              `json:"message"`
}

// LogMessageParams for window/logMessage notification.
type LogMessageParams struct {
	Type    hostcap.MessageType `json:"type"`
	Message string              `json:"message"`
}
