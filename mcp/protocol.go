// Package mcp serves the listen and transcribe_file tools over JSON-RPC 2.0,
// either as newline-delimited messages on a byte stream or one request per
// HTTP POST.
package mcp

import (
	"encoding/json"
	"errors"

	"voxmcp/audio"
	"voxmcp/session"
	"voxmcp/transcriber"
)

const (
	ProtocolVersion = "2024-11-05"
	jsonrpcVersion  = "2.0"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id and so expects
// no response.
func (r *Request) IsNotification() bool { return len(r.ID) == 0 }

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

var nullID = json.RawMessage("null")

func newResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: orNull(id), Result: result}
}

func newError(id json.RawMessage, code int, msg string) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: orNull(id), Error: &RPCError{Code: code, Message: msg}}
}

func orNull(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Outcome is the structured form of a tool result.
type Outcome struct {
	Success    bool    `json:"success"`
	Transcript *string `json:"transcript,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type ToolResult struct {
	Content           []Content `json:"content"`
	IsError           bool      `json:"isError,omitempty"`
	StructuredContent Outcome   `json:"structuredContent"`
}

func transcriptResult(text string) ToolResult {
	return ToolResult{
		Content:           []Content{{Type: "text", Text: text}},
		StructuredContent: Outcome{Success: true, Transcript: &text},
	}
}

func errorResult(err error) ToolResult {
	msg := ErrorMessage(err)
	return ToolResult{
		Content:           []Content{{Type: "text", Text: msg}},
		IsError:           true,
		StructuredContent: Outcome{Success: false, Error: msg},
	}
}

// Kind names the failure class of err for clients that branch on it.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, session.ErrSessionBusy):
		return "SessionBusy"
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "DeviceUnavailable"
	case errors.Is(err, audio.ErrStream):
		return "StreamError"
	case errors.Is(err, session.ErrCancelled):
		return "Cancelled"
	case errors.Is(err, transcriber.ErrTranscriptionFailed):
		return "TranscriptionFailed"
	case errors.Is(err, audio.ErrFileNotFound):
		return "FileNotFound"
	case errors.Is(err, audio.ErrInvalidAudioFormat):
		return "InvalidAudioFormat"
	default:
		return "Error"
	}
}

// ErrorMessage prefixes err with its kind, e.g. "SessionBusy: ...".
func ErrorMessage(err error) string {
	return Kind(err) + ": " + err.Error()
}
