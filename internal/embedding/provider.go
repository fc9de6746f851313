// Package embedding supplies the pluggable EmbeddingProvider the embedder
// worker calls on its coordination goroutine. Implementations are
// adapted from the donor codebase's embedding-activity pattern: a
// zero-vector stub, a deterministic local hash provider, and an
// HTTP-backed provider speaking an OpenAI-compatible request shape.
package embedding

import (
	"context"
	"math"
)

// Provider turns decoded tile pixels into unit-norm embedding vectors.
// EmbedImage is the primary path for this pipeline (§2); EmbedText
// supports the retriever's query-side encoding (§4.6), which shares a
// model family with the image side in the reference deployment.
type Provider interface {
	EmbedImage(ctx context.Context, model string, images [][]byte) ([][]float32, error)
	EmbedText(ctx context.Context, model string, texts []string) ([][]float32, error)
	ModelName() string
}

func normalizeInPlace(vecs [][]float32) {
	for _, v := range vecs {
		var sumSq float64
		for _, x := range v {
			sumSq += float64(x) * float64(x)
		}
		if sumSq == 0 {
			continue
		}
		inv := float32(1 / math.Sqrt(sumSq))
		for i := range v {
			v[i] *= inv
		}
	}
}
