package main

import (
	"strings"
	"testing"
	"testing/fstest"

	migrations "github.com/dropDatabas3/authgate/migrations/postgres"
)

func TestListMigrationsOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_links.sql": {Data: []byte("-- two")},
		"0001_init.sql":  {Data: []byte("-- one")},
		"README.md":      {Data: []byte("not sql")},
	}
	names, err := listMigrations(fsys)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"0001_init.sql", "0002_links.sql"}
	if len(names) != len(want) {
		t.Fatalf("names: %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d]: got %q, want %q", i, names[i], want[i])
		}
	}
}

// El esquema inicial tiene que viajar embebido en el binario.
func TestEmbeddedMigrations(t *testing.T) {
	names, err := listMigrations(migrations.FS)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 {
		t.Fatal("sin migraciones embebidas")
	}
	if names[0] != "0001_init.sql" {
		t.Errorf("primera migración: %q", names[0])
	}
	b, err := migrations.FS.ReadFile("0001_init.sql")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "CREATE TABLE") {
		t.Error("0001_init.sql no crea tablas")
	}
}
