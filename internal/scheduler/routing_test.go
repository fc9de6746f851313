package scheduler

import (
	"os"
	"testing"
)

func TestParseRoutingTableBackendAndCompoundKeys(t *testing.T) {
	r := ParseRoutingTable("pe_core=q1,clip:ViT-B-32=q2")

	if q, ok := r.Route("clip:ViT-B-32"); !ok || q != "q2" {
		t.Fatalf("expected compound key to route to q2, got %q ok=%v", q, ok)
	}
	if q, ok := r.Route("pe_core"); !ok || q != "q1" {
		t.Fatalf("expected bare backend to route to q1, got %q ok=%v", q, ok)
	}
	if q, ok := r.Route("siglip2"); !ok || q != "q1" {
		t.Fatalf("expected unmatched model to fall to default q1, got %q ok=%v", q, ok)
	}
}

func TestParseRoutingTableIgnoresEmptyEntries(t *testing.T) {
	r := ParseRoutingTable("pe_core=q1,,  ,clip=q2")
	if q, ok := r.Route("pe_core"); !ok || q != "q1" {
		t.Fatalf("unexpected route: %q %v", q, ok)
	}
}

func TestParseRoutingTableLastDuplicateWins(t *testing.T) {
	r := ParseRoutingTable("pe_core=q1,pe_core=q3")
	if q, ok := r.Route("pe_core"); !ok || q != "q3" {
		t.Fatalf("expected last duplicate to win, got %q %v", q, ok)
	}
}

func TestRouteNoMatchNoDefault(t *testing.T) {
	r := ParseRoutingTable("clip:ViT-B-32=q2")
	if _, ok := r.Route("unknown"); ok {
		t.Fatal("expected no match when no bare default queue is configured")
	}
}

func TestLoadRoutingFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/routing.yaml"
	content := "- match: pe_core\n  queue: q1\n- match: \"clip:ViT-B-32\"\n  queue: q2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write routing file: %v", err)
	}
	r, err := LoadRoutingFile(path)
	if err != nil {
		t.Fatalf("LoadRoutingFile: %v", err)
	}
	if q, ok := r.Route("clip:ViT-B-32"); !ok || q != "q2" {
		t.Fatalf("unexpected route: %q %v", q, ok)
	}
}
