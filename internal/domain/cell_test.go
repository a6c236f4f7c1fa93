package domain

import "testing"

func TestCellString(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: ""},
		{name: "string", in: "Food", want: "Food"},
		{name: "integral float", in: float64(42), want: "42"},
		{name: "million", in: float64(1000000), want: "1000000"},
		{name: "large", in: float64(2500000.5), want: "2500000.5"},
		{name: "small fraction", in: 0.00001, want: "0.00001"},
		{name: "negative", in: -1250.75, want: "-1250.75"},
		{name: "float32", in: float32(1e6), want: "1000000"},
		{name: "int", in: 7, want: "7"},
		{name: "bool", in: true, want: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CellString(tt.in); got != tt.want {
				t.Errorf("CellString(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
