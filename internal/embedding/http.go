package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProvider calls a configurable embeddings endpoint using an
// OpenAI-compatible request/response shape, for environments with a real
// model server behind the embedder worker.
type HTTPProvider struct {
	Endpoint string
	APIKey   string
	Model    string
	Client   *http.Client
}

type httpRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type httpResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (p *HTTPProvider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (p *HTTPProvider) EmbedText(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return p.embed(ctx, model, texts)
}

// EmbedImage base64-encodes each image and submits it as model input,
// matching the donor codebase's text-only OpenAI wire shape extended to
// carry opaque image payloads (the configured server is expected to
// detect image vs text input by content).
func (p *HTTPProvider) EmbedImage(ctx context.Context, model string, images [][]byte) ([][]float32, error) {
	encoded := make([]string, len(images))
	for i, img := range images {
		encoded[i] = base64.StdEncoding.EncodeToString(img)
	}
	return p.embed(ctx, model, encoded)
}

func (p *HTTPProvider) embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if model == "" {
		model = p.Model
	}
	body, err := json.Marshal(httpRequest{Model: model, Input: inputs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding: request failed: status=%d body=%s", resp.StatusCode, b)
	}
	var decoded httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if len(decoded.Data) != len(inputs) {
		return nil, errors.New("embedding: response count mismatch")
	}
	out := make([][]float32, len(inputs))
	for i, d := range decoded.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	normalizeInPlace(out)
	return out, nil
}

func (p *HTTPProvider) ModelName() string { return p.Model }
