package pgdb

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/storage/database"
)

func TestSelectStatement(t *testing.T) {
	tests := []struct {
		name     string
		query    core.Query
		wantStmt string
		wantArgs []interface{}
	}{
		{
			name:     "collection",
			query:    core.NewQuery("students"),
			wantStmt: "SELECT id, data FROM documents WHERE collection = $1",
			wantArgs: []interface{}{"students"},
		},
		{
			name:     "id",
			query:    core.NewQuery("students").WhereEqual(core.IDField, "s1"),
			wantStmt: "SELECT id, data FROM documents WHERE collection = $1 AND id = $2",
			wantArgs: []interface{}{"students", "s1"},
		},
		{
			name:     "fields",
			query:    core.NewQuery("students").WhereEqual("createdBy", "u1").WhereEqual("isWelfare", true),
			wantStmt: "SELECT id, data FROM documents WHERE collection = $1 AND data @> $2::jsonb",
			wantArgs: []interface{}{"students", `{"createdBy":"u1","isWelfare":true}`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, args, err := selectStatement(tt.query)
			if err != nil {
				t.Fatalf("selectStatement() error = %v", err)
			}
			if stmt != tt.wantStmt {
				t.Errorf("selectStatement() stmt = %q, want %q", stmt, tt.wantStmt)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("selectStatement() args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestDB_CloseTwice(t *testing.T) {
	// nothing listens on port 1, the connection and the listener stay unconnected
	const dsn = "postgres://welfare@127.0.0.1:1/welfare?sslmode=disable&connect_timeout=1"
	sqlDB, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sqlx.Open() error = %v", err)
	}
	db := newDB(sqlDB, core.NopLogger{})
	db.listener = pq.NewListener(dsn, minReconnect, maxReconnect, nil)
	go db.listen()

	first := db.Close()
	if second := db.Close(); second != first {
		t.Errorf("Close() second call = %v, want %v", second, first)
	}
	if _, err = db.Subscribe(core.NewQuery("students"), func([]core.Document) {}); err == nil {
		t.Error("Subscribe() after Close() should fail")
	}
}

// openTestDB connects to TEST_DATABASE_URL, skipping the test when it is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := Open(dsn, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err = database.Migrate(db.SQL().DB); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err = db.SQL().Exec("DELETE FROM documents WHERE collection LIKE 'test_%'"); err != nil {
		t.Fatalf("cleaning documents: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDB(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	const coll = "test_students"

	id, err := db.Create(ctx, coll, "", core.Data{"name": "Amina", "grade": "3", "createdAt": core.ServerTimestamp})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err = db.Create(ctx, coll, id, core.Data{"name": "Baraka"}); err != core.ErrAlreadyExists {
		t.Errorf("Create() duplicate error = %v, want %v", err, core.ErrAlreadyExists)
	}

	if err = db.Update(ctx, coll, id, core.Data{"grade": "4"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err = db.Update(ctx, coll, "missing", core.Data{"grade": "4"}); !core.IsNotFound(err) {
		t.Errorf("Update() missing error = %v, want not found", err)
	}

	doc, err := db.Get(ctx, coll, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc.Data["name"] != "Amina" || doc.Data["grade"] != "4" || !core.HasTime(doc.Data["createdAt"]) {
		t.Errorf("Get() = %v", doc.Data)
	}

	docs, err := db.Query(ctx, core.NewQuery(coll).WhereEqual("grade", "4"))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(docs) != 1 || docs[0].ID != id {
		t.Errorf("Query() = %v", docs)
	}

	if err = db.Delete(ctx, coll, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err = db.Get(ctx, coll, id); !core.IsNotFound(err) {
		t.Errorf("Get() after delete error = %v, want not found", err)
	}
}

func TestDB_Subscribe(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	const coll = "test_invoices"

	snapshots := make(chan []core.Document, 10)
	unsub, err := db.Subscribe(core.NewQuery(coll), func(docs []core.Document) { snapshots <- docs })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsub()

	wait := func(n int) {
		t.Helper()
		timeout := time.After(5 * time.Second)
		for {
			select {
			case docs := <-snapshots:
				if len(docs) == n {
					return
				}
			case <-timeout:
				t.Fatalf("no snapshot of %d documents", n)
			}
		}
	}
	wait(0)

	// a write from another connection reaches the subscription through NOTIFY
	if _, err = db.SQL().ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, 'inv-1', '{"status":"draft"}'::jsonb)`, coll); err != nil {
		t.Fatalf("insert: %v", err)
	}
	wait(1)
}
