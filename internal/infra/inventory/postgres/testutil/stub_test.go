package testutil

import (
	"context"
	"testing"
)

func TestStubDBInsertSelectTruncate(t *testing.T) {
	db, conn := NewStubDB()
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO inventory(name,position,payload) VALUES($1,$2,$3)`, "a", 0, []byte("{}")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rows, err := db.QueryContext(ctx, `SELECT name, payload FROM inventory ORDER BY position`)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	var n int
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if name != "a" || string(payload) != "{}" {
			t.Fatalf("unexpected row %s %s", name, payload)
		}
		n++
	}
	_ = rows.Close()
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE TABLE inventory`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if len(conn.Tables["inventory"]) != 0 || len(conn.Execs) != 2 {
		t.Fatalf("unexpected stub state %+v", conn)
	}
}

func TestStubDBParseErrors(t *testing.T) {
	db, _ := NewStubDB()
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `INSERT INTO broken`); err == nil {
		t.Fatalf("expected insert parse error")
	}
	if _, err := db.QueryContext(ctx, `DELETE FROM inventory`); err == nil {
		t.Fatalf("expected select parse error")
	}
}
