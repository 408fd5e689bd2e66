package database

import (
	"testing"
	"testing/fstest"
)

func TestPendingOrderSortsSQLFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"002_fields.sql":    {Data: []byte("SELECT 2")},
		"001_documents.sql": {Data: []byte("SELECT 1")},
		"README.md":         {Data: []byte("notes")},
	}

	files, err := PendingOrder(fsys)
	if err != nil {
		t.Fatalf("PendingOrder: %v", err)
	}
	if len(files) != 2 || files[0] != "001_documents.sql" || files[1] != "002_fields.sql" {
		t.Fatalf("files = %v", files)
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	files, err := PendingOrder(MigrationsFS(""))
	if err != nil {
		t.Fatalf("PendingOrder: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no embedded migrations")
	}
}
