package vectorstore

import (
	"fmt"
	"strconv"
	"strings"
)

// parseWhere renders a predicate over metadata columns into a parameterized
// SQL fragment. Only a small whitelist of comparison forms is accepted
// (col = val, col != val, col < val, col <= val, col > val, col >= val,
// col IN (v1, v2, ...)) so that a caller-supplied
// predicate string can never become arbitrary SQL (§4.3).
func parseWhere(expr string, startArg int) (sql string, args []any, err error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", nil, nil
	}
	for _, op := range []string{">=", "<=", "!=", "=", "<", ">"} {
		if idx := strings.Index(expr, op); idx > 0 && !strings.Contains(expr[:idx], "IN") {
			col := strings.TrimSpace(expr[:idx])
			rest := strings.TrimSpace(expr[idx+len(op):])
			if !validIdent(col) {
				return "", nil, fmt.Errorf("vectorstore: invalid column in where clause: %q", col)
			}
			val, err := parseScalar(rest)
			if err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("%s %s $%d", col, op, startArg), []any{val}, nil
		}
	}
	if idx := strings.Index(strings.ToUpper(expr), " IN "); idx > 0 {
		col := strings.TrimSpace(expr[:idx])
		if !validIdent(col) {
			return "", nil, fmt.Errorf("vectorstore: invalid column in where clause: %q", col)
		}
		rest := strings.TrimSpace(expr[idx+4:])
		rest = strings.TrimPrefix(rest, "(")
		rest = strings.TrimSuffix(rest, ")")
		parts := strings.Split(rest, ",")
		placeholders := make([]string, len(parts))
		vals := make([]any, len(parts))
		for i, p := range parts {
			v, err := parseScalar(strings.TrimSpace(p))
			if err != nil {
				return "", nil, err
			}
			vals[i] = v
			placeholders[i] = fmt.Sprintf("$%d", startArg+i)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ",")), vals, nil
	}
	return "", nil, fmt.Errorf("vectorstore: unsupported where clause: %q", expr)
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func parseScalar(s string) (any, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return s, nil
}
