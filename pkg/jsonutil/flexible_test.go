package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestStringValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"empty string", "", ""},
		{"integral float", float64(5), "5"},
		{"large integral float", float64(1000000), "1000000"},
		{"negative", float64(-42), "-42"},
		{"fraction", 1.5, "1.5"},
		{"small fraction", 0.0001, "0.0001"},
		{"bool", true, "true"},
		{"int", 7, "7"},
		{"json number", json.Number("12.50"), "12.50"},
		{"array", []any{float64(1), "a"}, `[1,"a"]`},
		{"object", map[string]any{"k": "v"}, `{"k":"v"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StringValue(tt.in); got != tt.want {
				t.Errorf("StringValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRawStringValue(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{``, ""},
		{`null`, ""},
		{`"hello"`, "hello"},
		{`10`, "10"},
		{`2.75`, "2.75"},
		{`false`, "false"},
		{`not json`, "not json"},
	}

	for _, tt := range tests {
		if got := RawStringValue(json.RawMessage(tt.raw)); got != tt.want {
			t.Errorf("RawStringValue(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
