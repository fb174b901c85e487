package models

import (
	"errors"
	"testing"
	"time"
)

func intPtr(v int) *int {
	return &v
}

func TestParsePeriodNotation(t *testing.T) {
	tests := []struct {
		name       string
		tipo       string
		input      string
		wantErr    bool
		wantAnio   int
		wantNumero *int
	}{
		{
			name:       "annual plain year",
			tipo:       PeriodAnnual,
			input:      "2024",
			wantAnio:   2024,
			wantNumero: nil,
		},
		{
			name:    "annual rejects sub-period suffix",
			tipo:    PeriodAnnual,
			input:   "2024-T1",
			wantErr: true,
		},
		{
			name:       "semiannual first half",
			tipo:       PeriodSemiannual,
			input:      "2024-S1",
			wantAnio:   2024,
			wantNumero: intPtr(1),
		},
		{
			name:       "semiannual lowercase marker",
			tipo:       PeriodSemiannual,
			input:      "2024-s2",
			wantAnio:   2024,
			wantNumero: intPtr(2),
		},
		{
			name:    "semiannual rejects S3",
			tipo:    PeriodSemiannual,
			input:   "2024-S3",
			wantErr: true,
		},
		{
			name:       "quarterly third quarter",
			tipo:       PeriodQuarterly,
			input:      "2024-T3",
			wantAnio:   2024,
			wantNumero: intPtr(3),
		},
		{
			name:    "quarterly rejects T5",
			tipo:    PeriodQuarterly,
			input:   "2024-T5",
			wantErr: true,
		},
		{
			name:       "monthly two-digit month",
			tipo:       PeriodMonthly,
			input:      "2024-02",
			wantAnio:   2024,
			wantNumero: intPtr(2),
		},
		{
			name:       "monthly single-digit month",
			tipo:       PeriodMonthly,
			input:      "2024-5",
			wantAnio:   2024,
			wantNumero: intPtr(5),
		},
		{
			name:    "monthly rejects month 13",
			tipo:    PeriodMonthly,
			input:   "2024-13",
			wantErr: true,
		},
		{
			name:    "monthly rejects month 0",
			tipo:    PeriodMonthly,
			input:   "2024-0",
			wantErr: true,
		},
		{
			name:    "monthly rejects quarter notation",
			tipo:    PeriodMonthly,
			input:   "2024-T1",
			wantErr: true,
		},
		{
			name:    "empty input fails",
			tipo:    PeriodAnnual,
			input:   "",
			wantErr: true,
		},
		{
			name:    "unknown kind fails",
			tipo:    "decenal",
			input:   "2024",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anio, numero, err := ParsePeriodNotation(tt.tipo, tt.input)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePeriodNotation(%q, %q) expected error, got anio=%d", tt.tipo, tt.input, anio)
				}
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Errorf("error type = %T, want *ParseError", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParsePeriodNotation(%q, %q) unexpected error: %v", tt.tipo, tt.input, err)
			}
			if anio != tt.wantAnio {
				t.Errorf("anio = %d, want %d", anio, tt.wantAnio)
			}
			if tt.wantNumero == nil {
				if numero != nil {
					t.Errorf("numero = %d, want nil", *numero)
				}
			} else {
				if numero == nil {
					t.Fatalf("numero = nil, want %d", *tt.wantNumero)
				}
				if *numero != *tt.wantNumero {
					t.Errorf("numero = %d, want %d", *numero, *tt.wantNumero)
				}
			}
		})
	}
}

func TestPeriodNotation_RoundTrip(t *testing.T) {
	tests := []struct {
		tipo   string
		anio   int
		numero *int
		want   string
	}{
		{PeriodAnnual, 2024, nil, "2024"},
		{PeriodSemiannual, 2024, intPtr(1), "2024-S1"},
		{PeriodSemiannual, 2024, intPtr(2), "2024-S2"},
		{PeriodQuarterly, 2023, intPtr(4), "2023-T4"},
		{PeriodMonthly, 2024, intPtr(5), "2024-05"},
		{PeriodMonthly, 2024, intPtr(11), "2024-11"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := PeriodNotation(tt.tipo, tt.anio, tt.numero)
			if got != tt.want {
				t.Fatalf("PeriodNotation = %q, want %q", got, tt.want)
			}

			anio, numero, err := ParsePeriodNotation(tt.tipo, got)
			if err != nil {
				t.Fatalf("round-trip parse failed: %v", err)
			}
			if anio != tt.anio {
				t.Errorf("round-trip anio = %d, want %d", anio, tt.anio)
			}
			if (numero == nil) != (tt.numero == nil) {
				t.Fatalf("round-trip numero nilness mismatch")
			}
			if numero != nil && *numero != *tt.numero {
				t.Errorf("round-trip numero = %d, want %d", *numero, *tt.numero)
			}
		})
	}
}

func TestPeriodDates(t *testing.T) {
	date := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name      string
		tipo      string
		anio      int
		numero    *int
		wantErr   bool
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "annual spans the year",
			tipo:      PeriodAnnual,
			anio:      2024,
			wantStart: date(2024, time.January, 1),
			wantEnd:   date(2024, time.December, 31),
		},
		{
			name:    "annual rejects a sub-period number",
			tipo:    PeriodAnnual,
			anio:    2024,
			numero:  intPtr(1),
			wantErr: true,
		},
		{
			name:      "first semester",
			tipo:      PeriodSemiannual,
			anio:      2024,
			numero:    intPtr(1),
			wantStart: date(2024, time.January, 1),
			wantEnd:   date(2024, time.June, 30),
		},
		{
			name:      "second semester",
			tipo:      PeriodSemiannual,
			anio:      2024,
			numero:    intPtr(2),
			wantStart: date(2024, time.July, 1),
			wantEnd:   date(2024, time.December, 31),
		},
		{
			name:    "semiannual requires a number",
			tipo:    PeriodSemiannual,
			anio:    2024,
			wantErr: true,
		},
		{
			name:      "first quarter",
			tipo:      PeriodQuarterly,
			anio:      2024,
			numero:    intPtr(1),
			wantStart: date(2024, time.January, 1),
			wantEnd:   date(2024, time.March, 31),
		},
		{
			name:      "second quarter ends in June",
			tipo:      PeriodQuarterly,
			anio:      2024,
			numero:    intPtr(2),
			wantStart: date(2024, time.April, 1),
			wantEnd:   date(2024, time.June, 30),
		},
		{
			name:    "quarter out of range",
			tipo:    PeriodQuarterly,
			anio:    2024,
			numero:  intPtr(5),
			wantErr: true,
		},
		{
			name:      "february leap year",
			tipo:      PeriodMonthly,
			anio:      2024,
			numero:    intPtr(2),
			wantStart: date(2024, time.February, 1),
			wantEnd:   date(2024, time.February, 29),
		},
		{
			name:      "february non-leap year",
			tipo:      PeriodMonthly,
			anio:      2023,
			numero:    intPtr(2),
			wantStart: date(2023, time.February, 1),
			wantEnd:   date(2023, time.February, 28),
		},
		{
			name:      "december ends on the 31st",
			tipo:      PeriodMonthly,
			anio:      2024,
			numero:    intPtr(12),
			wantStart: date(2024, time.December, 1),
			wantEnd:   date(2024, time.December, 31),
		},
		{
			name:    "month out of range",
			tipo:    PeriodMonthly,
			anio:    2024,
			numero:  intPtr(13),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := PeriodDates(tt.tipo, tt.anio, tt.numero)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("PeriodDates expected error, got [%v, %v]", start, end)
				}
				var specErr *InvalidPeriodSpecError
				if !errors.As(err, &specErr) {
					t.Errorf("error type = %T, want *InvalidPeriodSpecError", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("PeriodDates unexpected error: %v", err)
			}
			if !start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", start, tt.wantStart)
			}
			if !end.Equal(tt.wantEnd) {
				t.Errorf("end = %v, want %v", end, tt.wantEnd)
			}
		})
	}
}

// TestPeriodDates_SubPeriodsTileYear checks that each kind's sub-periods cover
// the year exactly, with each range starting the day after the previous one
// ends.
func TestPeriodDates_SubPeriodsTileYear(t *testing.T) {
	kinds := []struct {
		tipo  string
		count int
	}{
		{PeriodSemiannual, 2},
		{PeriodQuarterly, 4},
		{PeriodMonthly, 12},
	}

	for _, kind := range kinds {
		t.Run(kind.tipo, func(t *testing.T) {
			yearStart := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
			yearEnd := time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC)

			expectedStart := yearStart
			for n := 1; n <= kind.count; n++ {
				start, end, err := PeriodDates(kind.tipo, 2023, intPtr(n))
				if err != nil {
					t.Fatalf("PeriodDates(%s, 2023, %d) error: %v", kind.tipo, n, err)
				}
				if !start.Equal(expectedStart) {
					t.Errorf("%s %d start = %v, want %v", kind.tipo, n, start, expectedStart)
				}
				if !end.After(start) {
					t.Errorf("%s %d end %v not after start %v", kind.tipo, n, end, start)
				}
				expectedStart = end.AddDate(0, 0, 1)
			}

			if !expectedStart.Equal(yearEnd.AddDate(0, 0, 1)) {
				t.Errorf("%s sub-periods end at %v, want year end %v", kind.tipo, expectedStart.AddDate(0, 0, -1), yearEnd)
			}
		})
	}
}

func TestPeriodLabel(t *testing.T) {
	p := &Period{Tipo: PeriodQuarterly, Anio: 2024, Numero: intPtr(2)}
	if got := p.Label(); got != "2024-T2" {
		t.Errorf("Label() = %q, want %q", got, "2024-T2")
	}

	annual := &Period{Tipo: PeriodAnnual, Anio: 2025}
	if got := annual.Label(); got != "2025" {
		t.Errorf("Label() = %q, want %q", got, "2025")
	}
}

func TestIsPeriodKind(t *testing.T) {
	for _, k := range PeriodKinds {
		if !IsPeriodKind(k) {
			t.Errorf("IsPeriodKind(%q) = false, want true", k)
		}
	}
	if IsPeriodKind("diario") {
		t.Error("IsPeriodKind(\"diario\") = true, want false")
	}
	if IsPeriodKind("") {
		t.Error("IsPeriodKind(\"\") = true, want false")
	}
}
