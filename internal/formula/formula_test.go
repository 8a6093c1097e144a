package formula

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestParse_Eval(t *testing.T) {
	values := map[string]float64{"total_revenue": 1200, "num_quotes_accepted": 4, "total_expenses": 200}

	tests := []struct {
		formula string
		want    float64
	}{
		{"{{total_revenue}} / {{num_quotes_accepted}}", 300},
		{"{{ total_revenue }} - {{total_expenses}} * 2", 800},
		{"({{total_revenue}} - {{total_expenses}}) * 2", 2000},
		{"-{{total_expenses}} + 1.5", -198.5},
		{"10 / (4 - 4)", 0},
		{"({{total_revenue}} - {{total_expenses}}) / {{total_revenue}} * 100", 83.33333333333334},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			f, err := Parse(tt.formula)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			got, err := f.Eval(values)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		formula string
		pos     int
	}{
		{"", 0},
		{"{{total_revenue", 0},
		{"{{}} + 1", 0},
		{"{{total revenue}}", 0},
		{"1 +", 3},
		{"(1 + 2", 6},
		{"1 2", 2},
		{"1.2.3", 3},
		{"__import__('os')", 0},
		{"{{a}} % 2", 6},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			_, err := Parse(tt.formula)
			var fe *Error
			if !errors.As(err, &fe) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if fe.Pos != tt.pos {
				t.Errorf("error at %d, want %d (%v)", fe.Pos, tt.pos, fe)
			}
		})
	}
}

func TestVariables_FirstUseOrder(t *testing.T) {
	f, err := Parse("{{b}} + {{a}} * {{b}}")
	if err != nil {
		t.Fatal(err)
	}
	if got := f.Variables(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("Variables() = %v", got)
	}
	if _, err := f.Eval(map[string]float64{"b": 1}); err == nil {
		t.Error("expected an error for a missing value")
	}
}
