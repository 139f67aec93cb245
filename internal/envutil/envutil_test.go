package envutil

import (
	"reflect"
	"testing"
)

func TestMergeEnvironment(t *testing.T) {
	base := map[string]string{"A": "1", "B": "2"}
	override := map[string]string{"B": "override", "C": "3"}

	got := MergeEnvironment(base, override)
	want := map[string]string{"A": "1", "B": "override", "C": "3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeEnvironment = %v, want %v", got, want)
	}
}

func TestToSliceSorted(t *testing.T) {
	got := ToSlice(map[string]string{"Z": "last", "A": "first"})
	want := []string{"A=first", "Z=last"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ToSlice = %v, want %v", got, want)
	}
}

func TestToMap(t *testing.T) {
	got := ToMap([]string{"A=1", "B=2", "A=3", "bogus"})
	want := map[string]string{"A": "3", "B": "2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ToMap = %v, want %v", got, want)
	}
}

func TestMinimalEnvironment(t *testing.T) {
	env := MinimalEnvironment()
	if env["PATH"] == "" {
		t.Error("minimal environment has no PATH")
	}
}
