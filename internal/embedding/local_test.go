package embedding

import (
	"context"
	"math"
	"testing"
)

func TestLocalProviderEmbedImageUnitNorm(t *testing.T) {
	p := &LocalProvider{Dim: 32}
	vecs, err := p.EmbedImage(context.Background(), "", [][]byte{[]byte("tile-bytes-a"), []byte("tile-bytes-b")})
	if err != nil {
		t.Fatalf("EmbedImage: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	for _, v := range vecs {
		var sumSq float64
		for _, x := range v {
			sumSq += float64(x) * float64(x)
		}
		norm := math.Sqrt(sumSq)
		if math.Abs(norm-1) > 1e-5 {
			t.Fatalf("expected unit norm, got %v", norm)
		}
	}
}

func TestLocalProviderDeterministic(t *testing.T) {
	p := &LocalProvider{Dim: 16}
	a, err := p.EmbedImage(context.Background(), "", [][]byte{[]byte("same-input")})
	if err != nil {
		t.Fatalf("EmbedImage: %v", err)
	}
	b, err := p.EmbedImage(context.Background(), "", [][]byte{[]byte("same-input")})
	if err != nil {
		t.Fatalf("EmbedImage: %v", err)
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("expected deterministic embedding, differed at %d: %v vs %v", i, a[0][i], b[0][i])
		}
	}
}

func TestLocalProviderRejectsInvalidDimension(t *testing.T) {
	p := &LocalProvider{Dim: 0}
	if _, err := p.EmbedImage(context.Background(), "", [][]byte{[]byte("x")}); err == nil {
		t.Fatal("expected error for non-positive dimension")
	}
}

func TestZeroProviderReturnsZeroVectors(t *testing.T) {
	p := &ZeroProvider{Dim: 4}
	vecs, err := p.EmbedText(context.Background(), "", []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	for _, v := range vecs {
		for _, x := range v {
			if x != 0 {
				t.Fatalf("expected all-zero vector, got %v", v)
			}
		}
	}
}
