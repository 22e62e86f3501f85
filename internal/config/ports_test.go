package config

import (
	"errors"
	"testing"

	"uart-gateway/internal/decode"
)

func TestParsePorts_TwoTriples(t *testing.T) {
	got, err := ParsePorts([]string{"0", "COM3", "9600", "1", "COM4", "115200"})
	if err != nil {
		t.Fatalf("ParsePorts() error = %v", err)
	}
	want := []PortConfig{
		{Mode: decode.ModeJSON, Name: "COM3", BaudRate: 9600},
		{Mode: decode.ModeValueList, Name: "COM4", BaudRate: 115200},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d ports, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("port[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParsePorts_WrongCount(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"0", "COM3"},
		{"0", "COM3", "9600", "1"},
		{"0", "COM3", "9600", "1", "COM4"},
	} {
		_, err := ParsePorts(args)
		if !errors.Is(err, ErrWrongArgCount) {
			t.Errorf("ParsePorts(%q) error = %v, want ErrWrongArgCount", args, err)
		}
		if errors.Is(err, ErrInvalidArg) {
			t.Errorf("ParsePorts(%q) error also matches ErrInvalidArg", args)
		}
	}
}

func TestParsePorts_InvalidArgument(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		position int
	}{
		{name: "mode not a number", args: []string{"json", "COM3", "9600"}, position: 0},
		{name: "unknown mode", args: []string{"2", "COM3", "9600"}, position: 0},
		{name: "negative mode", args: []string{"-1", "COM3", "9600"}, position: 0},
		{name: "baud not a number", args: []string{"0", "COM3", "fast"}, position: 2},
		{name: "second triple baud", args: []string{"0", "COM3", "9600", "1", "COM4", "-5"}, position: 5},
		{name: "second triple mode", args: []string{"0", "COM3", "9600", "x", "COM4", "9600"}, position: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePorts(tt.args)
			if !errors.Is(err, ErrInvalidArg) {
				t.Fatalf("ParsePorts() error = %v, want ErrInvalidArg", err)
			}
			var argErr *InvalidArgError
			if !errors.As(err, &argErr) {
				t.Fatalf("ParsePorts() error %T is not *InvalidArgError", err)
			}
			if argErr.Position != tt.position {
				t.Errorf("Position = %d, want %d", argErr.Position, tt.position)
			}
		})
	}
}
