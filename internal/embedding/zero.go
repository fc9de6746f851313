package embedding

import (
	"context"
	"errors"
)

// ZeroProvider returns zero vectors. It exists for the startup smoke test
// that exercises the full pipeline before a real model is wired in.
type ZeroProvider struct {
	Dim int
}

func (p *ZeroProvider) EmbedImage(_ context.Context, _ string, images [][]byte) ([][]float32, error) {
	return p.zeros(len(images))
}

func (p *ZeroProvider) EmbedText(_ context.Context, _ string, texts []string) ([][]float32, error) {
	return p.zeros(len(texts))
}

func (p *ZeroProvider) zeros(n int) ([][]float32, error) {
	if p.Dim <= 0 {
		return nil, errors.New("embedding: invalid dimension")
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, p.Dim)
	}
	return out, nil
}

func (p *ZeroProvider) ModelName() string { return "zero-vector" }
