package embedding

import (
	"context"
	"errors"
	"hash/fnv"
)

// LocalProvider produces deterministic hashed embeddings without any
// external service, used by the happy-path end-to-end scenario and by
// tests ("fake model: vector = unit-norm hash"). Image bytes and text
// tokens are both folded through the same FNV-based bucketing so image
// and text queries land in the same space for the local test model.
type LocalProvider struct {
	Dim int
}

func (p *LocalProvider) EmbedImage(_ context.Context, _ string, images [][]byte) ([][]float32, error) {
	if p.Dim <= 0 {
		return nil, errors.New("embedding: invalid dimension")
	}
	out := make([][]float32, len(images))
	for i, img := range images {
		out[i] = p.embedBytes(img)
	}
	normalizeInPlace(out)
	return out, nil
}

func (p *LocalProvider) EmbedText(_ context.Context, _ string, texts []string) ([][]float32, error) {
	if p.Dim <= 0 {
		return nil, errors.New("embedding: invalid dimension")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.embedBytes([]byte(t))
	}
	normalizeInPlace(out)
	return out, nil
}

func (p *LocalProvider) embedBytes(data []byte) []float32 {
	vec := make([]float32, p.Dim)
	if len(data) == 0 {
		return vec
	}
	const window = 8
	for i := 0; i < len(data); i += window {
		end := i + window
		if end > len(data) {
			end = len(data)
		}
		h := fnv.New32a()
		_, _ = h.Write(data[i:end])
		idx := int(h.Sum32()) % p.Dim
		if idx < 0 {
			idx = -idx
		}
		vec[idx] += 1.0
	}
	return vec
}

func (p *LocalProvider) ModelName() string { return "local-fnv-hash" }
