package claims

import (
	"reflect"
	"testing"
)

func TestSetAddIgnoresEmpty(t *testing.T) {
	s := Set{}.Add(Email, "").Add(Email, "a@b.c")
	if len(s) != 1 || s.First(Email) != "a@b.c" {
		t.Errorf("set: %+v", s)
	}
}

func TestSetFirstAndValues(t *testing.T) {
	s := Set{}.Add(Role, "admin").Add(Role, "editor").Add(Email, "a@b.c")
	if s.First(Role) != "admin" {
		t.Errorf("First: %q", s.First(Role))
	}
	if got := s.Values(Role); !reflect.DeepEqual(got, []string{"admin", "editor"}) {
		t.Errorf("Values: %v", got)
	}
	if s.Has("nope") {
		t.Error("Has de un tipo inexistente")
	}
}

func TestSetDedupFirstWins(t *testing.T) {
	s := Set{}.Add(Role, "admin").Add(Role, "admin").Add(Role, "editor")
	d := s.Dedup()
	if got := d.Values(Role); !reflect.DeepEqual(got, []string{"admin", "editor"}) {
		t.Errorf("Dedup: %v", got)
	}
}

func TestMergeValue(t *testing.T) {
	if got := MergeValue("old", "new"); got != "new" {
		t.Errorf("entrante no vacío debe pisar: %q", got)
	}
	if got := MergeValue("old", ""); got != "old" {
		t.Errorf("entrante vacío no debe borrar: %q", got)
	}
	if got := MergeValue("", ""); got != "" {
		t.Errorf("ambos vacíos: %q", got)
	}
}

func TestMergeStringSet(t *testing.T) {
	got := MergeStringSet([]string{"a", "b"}, []string{"b", "c", ""})
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("MergeStringSet: %v", got)
	}
}

func TestMergeStringMap(t *testing.T) {
	got := MergeStringMap(
		map[string]string{"k1": "v1", "k2": "v2"},
		map[string]string{"k2": "nuevo", "k3": "v3", "k4": ""},
	)
	want := map[string]string{"k1": "v1", "k2": "nuevo", "k3": "v3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeStringMap: %v", got)
	}
}

func TestPriorityTypes(t *testing.T) {
	if !PriorityTypes[PreferredUsername] {
		t.Error("preferred_username debe ser priority")
	}
	if PriorityTypes[Email] {
		t.Error("email no es priority")
	}
}
