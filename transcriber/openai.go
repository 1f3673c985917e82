package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
)

const openAIURL = "https://api.openai.com/v1/audio/transcriptions"

type OpenAI struct {
	batchEngine
	apiKey string
	apiURL string
	lang   string
}

func NewOpenAI(apiKey, apiURL, lang string) *OpenAI {
	if apiURL == "" {
		apiURL = openAIURL
	}
	o := &OpenAI{apiKey: apiKey, apiURL: apiURL, lang: lang}
	o.batchEngine = batchEngine{
		name:   EngineOpenAI,
		client: NewTracedClient(apiURL),
		upload: o.transcribe,
	}
	return o
}

func (o *OpenAI) transcribe(ctx context.Context, audioData []byte, format string) (*Result, error) {
	req, err := newUploadRequest(ctx, o.apiURL, o.apiKey, audioData, format, map[string]string{
		"model":           "gpt-4o-transcribe",
		"response_format": "json",
		"language":        o.lang,
	})
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, apiError("openai", resp)
	}

	var oResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &oResp); err != nil {
		return nil, fmt.Errorf("openai response parse error: %w", err)
	}

	return &Result{
		Text:      oResp.Text,
		Metrics:   resp.Metrics,
		RateLimit: rateLimit(resp.Header),
	}, nil
}
