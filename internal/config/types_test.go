package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "seconds", input: "10s", want: 10 * time.Second},
		{name: "compound", input: "1m30s", want: 90 * time.Second},
		{name: "zero", input: "0s", want: 0},
		{name: "negative rejected", input: "-5s", wantErr: true},
		{name: "garbage rejected", input: "banana", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("UnmarshalText(%q) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("UnmarshalText(%q) error = %v, want nil", tt.input, err)
			}
			if d.Duration() != tt.want {
				t.Errorf("Duration() = %v, want %v", d.Duration(), tt.want)
			}
		})
	}
}

func TestDuration_Marshal(t *testing.T) {
	d := Duration(90 * time.Second)

	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}
	if string(text) != "1m30s" {
		t.Errorf("MarshalText() = %q, want 1m30s", text)
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(data) != `"1m30s"` {
		t.Errorf("json.Marshal() = %s, want \"1m30s\"", data)
	}
}

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("hunter2")

	if s.String() != "[REDACTED]" {
		t.Errorf("String() = %q, want [REDACTED]", s.String())
	}
	if s.GoString() != "Secret([REDACTED])" {
		t.Errorf("GoString() = %q, want Secret([REDACTED])", s.GoString())
	}
	if got := fmt.Sprintf("%v", s); got != "[REDACTED]" {
		t.Errorf("%%v = %q, want [REDACTED]", got)
	}
	if got := fmt.Sprintf("%#v", s); got != "Secret([REDACTED])" {
		t.Errorf("%%#v = %q, want Secret([REDACTED])", got)
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(data) != `"[REDACTED]"` {
		t.Errorf("json.Marshal() = %s, want \"[REDACTED]\"", data)
	}

	text, err := s.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}
	if string(text) != "[REDACTED]" {
		t.Errorf("MarshalText() = %q, want [REDACTED]", text)
	}

	yamlValue, err := s.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error = %v", err)
	}
	if yamlValue != "[REDACTED]" {
		t.Errorf("MarshalYAML() = %v, want [REDACTED]", yamlValue)
	}
}

func TestSecret_Value(t *testing.T) {
	s := Secret("hunter2")
	if s.Value() != "hunter2" {
		t.Errorf("Value() = %q, want the raw secret", s.Value())
	}
	if !s.IsSet() {
		t.Error("IsSet() = false, want true")
	}
}

func TestSecret_Empty(t *testing.T) {
	var s Secret

	if s.String() != "" {
		t.Errorf("String() = %q, want empty", s.String())
	}
	if s.IsSet() {
		t.Error("IsSet() = true, want false")
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(data) != `""` {
		t.Errorf("json.Marshal() = %s, want \"\"", data)
	}
}

func TestSecret_UnmarshalText(t *testing.T) {
	var s Secret
	if err := s.UnmarshalText([]byte("raw-value")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if s.Value() != "raw-value" {
		t.Errorf("Value() = %q, want raw-value", s.Value())
	}
}
