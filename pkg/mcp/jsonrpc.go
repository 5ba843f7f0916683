// Package mcp implements the Model Context Protocol dispatch layer: a TCP
// server speaking newline-delimited JSON-RPC 2.0, exposing fitness tools to
// AI assistants.
package mcp

import (
	"encoding/json"
)

// JSON-RPC 2.0 error codes used on the wire.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
)

// Request is one incoming JSON-RPC message. The auth field carries the
// bearer session for tools/call; it is not part of plain JSON-RPC.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id"`
	Auth    string          `json:"auth,omitempty"`
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Response is one outgoing JSON-RPC message. Result and Error are both
// always present; exactly one is non-null. The request id is echoed
// verbatim, including null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result"`
	Error   *Error          `json:"error"`
	ID      json.RawMessage `json:"id"`
}

// NewResult builds a success response echoing the given id.
func NewResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", Result: result, ID: normalizeID(id)}
}

// NewError builds an error response echoing the given id.
func NewError(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      normalizeID(id),
	}
}

// normalizeID maps an absent id to an explicit null so the echoed field
// always marshals.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
