package domain

import "testing"

func TestValuesEqual(t *testing.T) {
	cases := []struct {
		a, b any
		want bool
	}{
		{int64(816), 816, true},
		{816, float64(816), true},
		{float64(0.5), float32(0.5), true},
		{"816", int64(816), false},
		{"literature", "literature", true},
		{"literature", "inferred", false},
		{nil, nil, true},
		{nil, "", false},
		{int64(1), int64(2), false},
	}
	for _, tc := range cases {
		if got := ValuesEqual(tc.a, tc.b); got != tc.want {
			t.Errorf("ValuesEqual(%#v, %#v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestIsNull(t *testing.T) {
	if !IsNull(nil) || !IsNull("  ") {
		t.Fatal("nil and blank strings are null")
	}
	if IsNull(0) || IsNull("x") {
		t.Fatal("zero numbers and text are values")
	}
}

func TestRecordCloneIsIndependent(t *testing.T) {
	r := Record{"a": "X"}
	c := r.Clone()
	c["b"] = "Z"
	if _, ok := r["b"]; ok {
		t.Fatal("clone shares storage with source")
	}
	if Record(nil).Clone() != nil {
		t.Fatal("nil clone should stay nil")
	}
}

func TestKeyString(t *testing.T) {
	got := KeyString("Genes", []any{"ENSG00000139618", int64(9606)})
	if got != "Genes|ENSG00000139618|9606" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestResultMerge(t *testing.T) {
	var r Result
	r.Merge(Result{})
	r.Merge(Result{Changes: []Change{{Table: "Taxa", Action: ActionInsert, RowID: 1}}})
	if r.Writes() != 1 {
		t.Fatalf("expected one write, got %d", r.Writes())
	}
}
