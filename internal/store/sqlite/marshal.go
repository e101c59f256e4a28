package sqlite

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// marshalList encodes an ordered string list as a JSON array. nil becomes
// "[]" so the column never holds null.
func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // URLs keep their & and <>
	if err := enc.Encode(items); err != nil {
		return "", fmt.Errorf("marshal list: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalList decodes a JSON array column. Always returns a non-nil slice.
func unmarshalList(data string) ([]string, error) {
	items := []string{}
	if data == "" || data == "[]" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, fmt.Errorf("unmarshal list: %w", err)
	}
	return items, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

// nullString stores "" as NULL so COALESCE-based first-seen-wins updates
// treat it as unset.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
