package cmd

import (
	"os"
	"testing"
)

func TestValidateAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "port only", addr: ":8321", wantErr: false},
		{name: "localhost", addr: "localhost:8321", wantErr: false},
		{name: "loopback IP", addr: "127.0.0.1:8321", wantErr: false},
		{name: "all interfaces", addr: "0.0.0.0:8080", wantErr: false},
		{name: "auto-assign port", addr: ":0", wantErr: false},
		{name: "missing port", addr: "localhost", wantErr: true},
		{name: "empty", addr: "", wantErr: true},
		{name: "non-numeric port", addr: ":http", wantErr: true},
		{name: "port too large", addr: ":70000", wantErr: true},
		{name: "whitespace host", addr: "bad host:8080", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validateAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAddr(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestParseDevServerAddr(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "default", args: []string{"todd", "devserver"}, want: "127.0.0.1:8321"},
		{name: "positional", args: []string{"todd", "devserver", ":9000"}, want: ":9000"},
		{name: "flag", args: []string{"todd", "devserver", "--addr", ":9000"}, want: ":9000"},
		{name: "single dash flag", args: []string{"todd", "devserver", "-addr", "localhost:9000"}, want: "localhost:9000"},
		{name: "invalid positional", args: []string{"todd", "devserver", "no-port"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			os.Args = tt.args
			defer func() { os.Args = oldArgs }()

			got, err := parseDevServerAddr()
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDevServerAddr() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseDevServerAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}
