package models

import "testing"

func TestCellFromString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind CellKind
		wantRaw  string
	}{
		{"empty string", "", CellEmpty, ""},
		{"whitespace only", "   ", CellEmpty, ""},
		{"integer", "42", CellNumber, "42"},
		{"decimal", "3.14", CellNumber, "3.14"},
		{"negative", "-7.5", CellNumber, "-7.5"},
		{"zero", "0", CellNumber, "0"},
		{"iso date", "2024-01-15", CellDate, "2024-01-15"},
		{"slash date", "15/01/2024", CellDate, "15/01/2024"},
		{"boolean true", "true", CellBool, "true"},
		{"boolean si", "Si", CellBool, "Si"},
		{"boolean no", "no", CellBool, "no"},
		{"plain text", "Zona Norte", CellText, "Zona Norte"},
		{"trimmed text", "  Urbana  ", CellText, "Urbana"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CellFromString(tt.input)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Raw != tt.wantRaw {
				t.Errorf("Raw = %q, want %q", got.Raw, tt.wantRaw)
			}
		})
	}
}

func TestCellFromAny(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		wantKind CellKind
		wantRaw  string
	}{
		{"nil", nil, CellEmpty, ""},
		{"json number", float64(120), CellNumber, "120"},
		{"json decimal", float64(1.5), CellNumber, "1.5"},
		{"json bool", true, CellBool, "true"},
		{"json string number", "88", CellNumber, "88"},
		{"json string text", "Rural", CellText, "Rural"},
		{"json empty string", "", CellEmpty, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CellFromAny(tt.input)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Raw != tt.wantRaw {
				t.Errorf("Raw = %q, want %q", got.Raw, tt.wantRaw)
			}
		})
	}
}

// Empty cells and numeric zeros must not produce value rows, but an explicit
// zero still counts as present for required-variable checks.
func TestCellValue_Sparseness(t *testing.T) {
	tests := []struct {
		name        string
		cell        CellValue
		wantPresent bool
		wantStore   bool
	}{
		{"empty", CellFromString(""), false, false},
		{"zero integer", CellFromString("0"), true, false},
		{"zero decimal", CellFromString("0.0"), true, false},
		{"nonzero number", CellFromString("15"), true, true},
		{"negative number", CellFromString("-3"), true, true},
		{"text", CellFromString("Urbana"), true, true},
		{"text zero-like", CellFromString("cero"), true, true},
		{"boolean false", CellFromString("false"), true, true},
		{"date", CellFromString("2024-01-15"), true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cell.IsPresent(); got != tt.wantPresent {
				t.Errorf("IsPresent() = %v, want %v", got, tt.wantPresent)
			}
			if got := tt.cell.ShouldStore(); got != tt.wantStore {
				t.Errorf("ShouldStore() = %v, want %v", got, tt.wantStore)
			}
		})
	}
}

func TestIsVarKind(t *testing.T) {
	for _, k := range []string{VarNumber, VarText, VarDate, VarBoolean} {
		if !IsVarKind(k) {
			t.Errorf("IsVarKind(%q) = false, want true", k)
		}
	}
	if IsVarKind("decimal") {
		t.Error("IsVarKind(\"decimal\") = true, want false")
	}
}
