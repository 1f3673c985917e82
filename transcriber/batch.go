package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"voxmcp/audio"
	"voxmcp/encoder"
	"voxmcp/log"
)

const uploadFormat = "flac"

// Result is what an HTTP backend reports for one upload.
type Result struct {
	Text         string
	Metrics      *NetworkMetrics
	RateLimit    string
	NoSpeechProb float64
	AvgLogProb   float64
	Duration     float64
}

// Warmer is implemented by engines that benefit from opening their
// connection while the user is still speaking.
type Warmer interface {
	Warm()
}

type uploadFunc func(ctx context.Context, audio []byte, format string) (*Result, error)

// batchEngine compresses the whole buffer to FLAC and uploads it in one
// request.
type batchEngine struct {
	name   string
	client *TracedClient
	upload uploadFunc
}

func (b *batchEngine) Name() string { return b.name }

func (b *batchEngine) Warm() { b.client.Warm() }

func (b *batchEngine) Close() error {
	b.client.CloseIdle()
	return nil
}

func (b *batchEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	enc, err := encoder.NewFlac(sampleRate)
	if err != nil {
		return "", err
	}
	pcm := audio.ToInt16(samples)
	data, err := encoder.Encode(enc, pcm)
	if err != nil {
		return "", fmt.Errorf("%s: encoding: %w", b.name, err)
	}

	res, err := b.upload(ctx, data, uploadFormat)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}

	m := res.Metrics
	if m == nil {
		m = &NetworkMetrics{}
	}
	log.TranscriptionMetrics(log.Metrics{
		AudioLengthS:     float64(len(samples)) / float64(sampleRate),
		RawSizeKB:        float64(len(pcm)*2) / 1024,
		CompressedSizeKB: float64(len(data)) / 1024,
		EncodeTimeMs:     float64(enc.EncodeTime().Microseconds()) / 1000,
		DNSTimeMs:        float64(m.DNS.Milliseconds()),
		TLSTimeMs:        float64(m.TLS.Milliseconds()),
		TTFBMs:           float64(m.TTFB.Milliseconds()),
		TotalTimeMs:      float64(m.Sum().Milliseconds()),
	}, b.name, uploadFormat, m.ConnReused)
	if res.RateLimit != "" {
		log.Debugf("%s rate limit remaining %s", b.name, res.RateLimit)
	}

	return strings.TrimSpace(res.Text), nil
}

// newUploadRequest builds the multipart body shared by the OpenAI-compatible
// transcription endpoints.
func newUploadRequest(ctx context.Context, url, apiKey string, audioData []byte, format string, fields map[string]string) (*http.Request, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio."+format)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audioData); err != nil {
		return nil, err
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := writer.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

func apiError(name string, resp *TracedResponse) error {
	body := strings.TrimSpace(string(resp.Body))
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Errorf("%s API error %d: %s", name, resp.StatusCode, body)
}

func rateLimit(h http.Header) string {
	remaining := firstNonEmpty(h, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(h, "x-ratelimit-limit-requests")
	return remaining + "/" + limit
}
