package calculator

import (
	"context"
	"strings"
	"testing"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{"2 + 3", "5"},
		{"12500000 * 0.11", "1375000"},
		{"(2 + 3) * 4", "20"},
		{"10 / 4", "2.5"},
		{"-3 + 5", "2"},
		{"2 ^ 10", "1024"},
		{"2 ^ 3 ^ 2", "512"},
		{"17 % 5", "2"},
		{"1_500_000 * 2", "3000000"},
	}
	tool := New()
	for _, tc := range cases {
		result, err := tool.Execute(context.Background(), map[string]any{"expression": tc.expr})
		if err != nil {
			t.Fatalf("Execute(%q) error: %v", tc.expr, err)
		}
		if result.IsError {
			t.Fatalf("Execute(%q) observation error: %q", tc.expr, result.Content)
		}
		if result.Content != tc.want {
			t.Fatalf("Execute(%q) = %q, want %q", tc.expr, result.Content, tc.want)
		}
	}
}

func TestEvaluateErrors(t *testing.T) {
	cases := []string{
		"",
		"2 +",
		"(2 + 3",
		"1 / 0",
		"hello world",
		"2 3",
	}
	tool := New()
	for _, expr := range cases {
		result, err := tool.Execute(context.Background(), map[string]any{"expression": expr})
		if err != nil {
			t.Fatalf("Execute(%q) returned a Go error: %v", expr, err)
		}
		if !result.IsError {
			t.Fatalf("Execute(%q) accepted, content %q", expr, result.Content)
		}
	}
}

func TestErrorObservationNamesExpression(t *testing.T) {
	tool := New()
	result, _ := tool.Execute(context.Background(), map[string]any{"expression": "2 +"})
	if !strings.Contains(result.Content, "2 +") {
		t.Fatalf("observation does not echo the expression: %q", result.Content)
	}
}
