package vectorstore

import "testing"

func TestParseWhereEquality(t *testing.T) {
	sql, args, err := parseWhere("source = 'sat1'", 1)
	if err != nil {
		t.Fatalf("parseWhere: %v", err)
	}
	if sql != "source = $1" {
		t.Fatalf("unexpected sql: %q", sql)
	}
	if len(args) != 1 || args[0] != "sat1" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestParseWhereIn(t *testing.T) {
	sql, args, err := parseWhere("status IN ('a', 'b')", 1)
	if err != nil {
		t.Fatalf("parseWhere: %v", err)
	}
	if sql != "status IN ($1,$2)" {
		t.Fatalf("unexpected sql: %q", sql)
	}
	if len(args) != 2 || args[0] != "a" || args[1] != "b" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestParseWhereComparison(t *testing.T) {
	sql, args, err := parseWhere("zoom >= 12", 3)
	if err != nil {
		t.Fatalf("parseWhere: %v", err)
	}
	if sql != "zoom >= $3" {
		t.Fatalf("unexpected sql: %q", sql)
	}
	if len(args) != 1 || args[0] != int64(12) {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestParseWhereRejectsInvalidColumn(t *testing.T) {
	_, _, err := parseWhere("source; DROP TABLE tiles = 'x'", 1)
	if err == nil {
		t.Fatal("expected error for invalid column identifier")
	}
}

func TestParseWhereRejectsUnsupportedExpr(t *testing.T) {
	_, _, err := parseWhere("source LIKE 'sat%'", 1)
	if err == nil {
		t.Fatal("expected error for unsupported where clause")
	}
}

func TestParseWhereEmptyIsNoop(t *testing.T) {
	sql, args, err := parseWhere("", 1)
	if err != nil {
		t.Fatalf("parseWhere: %v", err)
	}
	if sql != "" || args != nil {
		t.Fatalf("expected empty result for empty expr, got %q %v", sql, args)
	}
}
