package transcriber

import (
	"context"
	"encoding/json"
	"fmt"

	"voxmcp/log"
)

const groqURL = "https://api.groq.com/openai/v1/audio/transcriptions"

type Groq struct {
	batchEngine
	apiKey string
	apiURL string
	lang   string
}

func NewGroq(apiKey, apiURL, lang string) *Groq {
	if apiURL == "" {
		apiURL = groqURL
	}
	g := &Groq{apiKey: apiKey, apiURL: apiURL, lang: lang}
	g.batchEngine = batchEngine{
		name:   EngineGroq,
		client: NewTracedClient(apiURL),
		upload: g.transcribe,
	}
	return g
}

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text         string  `json:"text"`
		NoSpeechProb float64 `json:"no_speech_prob"`
		AvgLogProb   float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func (g *Groq) transcribe(ctx context.Context, audioData []byte, format string) (*Result, error) {
	req, err := newUploadRequest(ctx, g.apiURL, g.apiKey, audioData, format, map[string]string{
		"model":           "whisper-large-v3-turbo",
		"response_format": "verbose_json",
		"language":        g.lang,
	})
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, apiError("groq", resp)
	}

	var gResp groqResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, fmt.Errorf("groq response parse error: %w", err)
	}

	var noSpeechProb, avgLogProb float64
	if len(gResp.Segments) > 0 {
		var logProbSum float64
		for _, seg := range gResp.Segments {
			noSpeechProb = max(noSpeechProb, seg.NoSpeechProb)
			logProbSum += seg.AvgLogProb
		}
		avgLogProb = logProbSum / float64(len(gResp.Segments))
		log.Debugf("groq: %d segments, no_speech=%.3f avg_logprob=%.3f", len(gResp.Segments), noSpeechProb, avgLogProb)
	}

	return &Result{
		Text:         gResp.Text,
		Metrics:      resp.Metrics,
		RateLimit:    rateLimit(resp.Header),
		NoSpeechProb: noSpeechProb,
		AvgLogProb:   avgLogProb,
		Duration:     gResp.Duration,
	}, nil
}
