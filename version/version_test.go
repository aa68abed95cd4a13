package version

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Version
		wantErr bool
	}{
		{"1.0", New(1, 0, 0, 0), false},
		{"2.1.0", New(2, 1, 0, 0), false},
		{"4.0.30319.42000", New(4, 0, 30319, 42000), false},
		{" 3.1.4 ", New(3, 1, 4, 0), false},
		{"65535.65535.65535.65535", New(65535, 65535, 65535, 65535), false},

		{"", Version{}, true},
		{"5", Version{}, true},
		{"1.2.3.4.5", Version{}, true},
		{"1.x", Version{}, true},
		{"1.-2", Version{}, true},
		{"1..2", Version{}, true},
		{"v1.0", Version{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Errorf("Parse(%q) error type = %T, want *ParseError", tt.input, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	if got := MustParse("3.0").String(); got != "3.0.0.0" {
		t.Errorf("String() = %q, want 3.0.0.0", got)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "2.0", -1},
		{"2.0", "1.0", 1},
		{"1.0", "1.0.0.0", 0},
		{"1.2.3.4", "1.2.3.5", -1},
		{"1.2.4.0", "1.2.3.9", 1},
		{"10.0", "9.9.9.9", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			if got := Compare(MustParse(tt.a), MustParse(tt.b)); got != tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestClosest(t *testing.T) {
	candidates := []Version{MustParse("1.0"), MustParse("3.0")}

	tests := []struct {
		name       string
		candidates []Version
		requested  string
		want       int
	}{
		{"exact", candidates, "1.0", 0},
		{"between picks next higher", candidates, "2.0", 1},
		{"above all picks highest", candidates, "4.0", 1},
		{"below all picks lowest", candidates, "0.5", 0},
		{"empty", nil, "1.0", -1},
		{"ties prefer first", []Version{MustParse("2.0"), MustParse("2.0"), MustParse("1.0")}, "1.5", 0},
		{"ties at top prefer first", []Version{MustParse("2.0"), MustParse("1.0"), MustParse("2.0")}, "9.0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Closest(tt.candidates, MustParse(tt.requested)); got != tt.want {
				t.Errorf("Closest(%v, %s) = %d, want %d", tt.candidates, tt.requested, got, tt.want)
			}
		})
	}
}

func TestRetargetableSentinel(t *testing.T) {
	if !Zero.IsRetargetableSentinel() {
		t.Error("0.0.0.0 should be a sentinel")
	}
	if !New(65535, 65535, 65535, 65535).IsRetargetableSentinel() {
		t.Error("65535.65535.65535.65535 should be a sentinel")
	}
	if New(4, 0, 0, 0).IsRetargetableSentinel() {
		t.Error("4.0.0.0 should not be a sentinel")
	}
}

func TestParseOrZero(t *testing.T) {
	if got := ParseOrZero("garbage"); !got.IsZero() {
		t.Errorf("ParseOrZero(garbage) = %v, want zero", got)
	}
	if got := ParseOrZero("1.2"); got != New(1, 2, 0, 0) {
		t.Errorf("ParseOrZero(1.2) = %v", got)
	}
}
