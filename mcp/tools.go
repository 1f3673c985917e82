package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"voxmcp/config"
	"voxmcp/session"
)

const (
	ToolListen         = "listen"
	ToolTranscribeFile = "transcribe_file"
)

// Service is what the tools need from the recording service.
type Service interface {
	Listen(ctx context.Context, cfg session.Config) (session.Result, error)
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// ListenArgs are optional overrides of the server's session defaults.
type ListenArgs struct {
	TimeoutMs        *int  `json:"timeout_ms" validate:"omitempty,gt=0,lte=600000"`
	SilenceTimeoutMs *int  `json:"silence_timeout_ms" validate:"omitempty,gt=0,lte=600000"`
	AutoStop         *bool `json:"auto_stop"`
}

func (a ListenArgs) apply(cfg session.Config) session.Config {
	if a.TimeoutMs != nil {
		cfg.TimeoutMs = *a.TimeoutMs
	}
	if a.SilenceTimeoutMs != nil {
		cfg.SilenceTimeoutMs = *a.SilenceTimeoutMs
	}
	if a.AutoStop != nil {
		cfg.AutoStop = *a.AutoStop
	}
	return cfg
}

type TranscribeFileArgs struct {
	FilePath string `json:"file_path" validate:"required"`
}

type Tool struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"inputSchema"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
}

var outcomeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"success":    map[string]any{"type": "boolean"},
		"transcript": map[string]any{"type": "string"},
		"error":      map[string]any{"type": "string"},
	},
	"required": []string{"success"},
}

func tools(defaults session.Config) []Tool {
	return []Tool{
		{
			Name:        ToolListen,
			Description: "Record from the microphone until silence, timeout or stop, then return the transcript.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"timeout_ms": map[string]any{
						"type":        "integer",
						"description": "Hard recording limit in milliseconds",
						"default":     defaults.TimeoutMs,
						"minimum":     1,
					},
					"silence_timeout_ms": map[string]any{
						"type":        "integer",
						"description": "Stop after this much continuous silence (ms)",
						"default":     defaults.SilenceTimeoutMs,
						"minimum":     1,
					},
					"auto_stop": map[string]any{
						"type":        "boolean",
						"description": "Stop automatically on silence",
						"default":     defaults.AutoStop,
					},
				},
			},
			OutputSchema: outcomeSchema,
		},
		{
			Name:        ToolTranscribeFile,
			Description: "Transcribe an existing PCM WAV file.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path": map[string]any{
						"type":        "string",
						"description": "Path to a PCM WAV file",
					},
				},
				"required": []string{"file_path"},
			},
			OutputSchema: outcomeSchema,
		},
	}
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// decodeArgs treats absent or null arguments as an empty object, then runs
// the validator over the result.
func decodeArgs(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, nullID) {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("arguments: %v", err)
	}
	return config.ValidateStruct(v)
}

// callTool runs a tool. Protocol problems come back as an *RPCError; tool
// failures are ordinary results with isError set.
func (s *Server) callTool(ctx context.Context, p callParams) (ToolResult, *RPCError) {
	switch p.Name {
	case ToolListen:
		var args ListenArgs
		if err := decodeArgs(p.Arguments, &args); err != nil {
			return ToolResult{}, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		res, err := s.svc.Listen(ctx, args.apply(s.defaults))
		if err != nil {
			return errorResult(err), nil
		}
		return transcriptResult(strings.TrimSpace(res.Text)), nil

	case ToolTranscribeFile:
		var args TranscribeFileArgs
		if err := decodeArgs(p.Arguments, &args); err != nil {
			return ToolResult{}, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		text, err := s.svc.TranscribeFile(ctx, args.FilePath)
		if err != nil {
			return errorResult(err), nil
		}
		return transcriptResult(strings.TrimSpace(text)), nil

	default:
		return ToolResult{}, &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("unknown tool %q", p.Name)}
	}
}
