package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type pathFields struct {
	File string `validate:"file_exists"`
	Dir  string `validate:"dir_exists"`
}

func TestFileAndDirValidators(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "gateline.yaml")
	if err := os.WriteFile(file, []byte("app:\n  name: gateline\n"), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	tests := []struct {
		name   string
		fields pathFields
		valid  bool
	}{
		{"both empty are optional", pathFields{}, true},
		{"existing file and dir", pathFields{File: file, Dir: dir}, true},
		{"missing file", pathFields{File: filepath.Join(dir, "absent.yaml")}, false},
		{"dir given as file", pathFields{File: dir}, false},
		{"missing dir", pathFields{Dir: filepath.Join(dir, "absent")}, false},
		{"file given as dir", pathFields{Dir: file}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.fields)
			if tt.valid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Fatalf("expected %+v to fail validation", tt.fields)
			}
		})
	}
}

func TestHostValidator(t *testing.T) {
	type bindAddr struct {
		Host string `validate:"host"`
	}

	valid := []string{
		"", "localhost", "0.0.0.0", "127.0.0.1:8080",
		"redis.internal", "broker.eu-west.example.com",
		"::1", "2001:db8::1", "redis_primary",
	}
	for _, host := range valid {
		if err := validate.Struct(bindAddr{Host: host}); err != nil {
			t.Errorf("host %q should be accepted: %v", host, err)
		}
	}

	invalid := []string{"two hosts", "bad\thost", "bad\nhost", "host;rm"}
	for _, host := range invalid {
		if err := validate.Struct(bindAddr{Host: host}); err == nil {
			t.Errorf("host %q should be rejected", host)
		}
	}
}

func TestValidateWithDetails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.Environment = "prod" // not in the oneof set
	cfg.Inventory.Type = "dynamo"
	cfg.Server.Port = 0

	err := ValidateWithDetails(cfg)
	if err == nil {
		t.Fatal("expected validation failure")
	}

	details, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(details) != 3 {
		t.Fatalf("expected 3 field errors, got %d: %v", len(details), details)
	}

	msg := err.Error()
	for _, want := range []string{"Environment", "Inventory", "Port"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing field %q:\n%s", want, msg)
		}
	}
}

func TestValidateWithDetailsPasses(t *testing.T) {
	if err := ValidateWithDetails(DefaultConfig()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestFormatValidationErrorMessages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Type = "sqlite"

	err := ValidateWithDetails(cfg)
	details, ok := err.(ValidationErrors)
	if !ok || len(details) != 1 {
		t.Fatalf("expected one field error, got %v", err)
	}
	if !strings.Contains(details[0].Message, "must be one of") {
		t.Fatalf("oneof failure message = %q", details[0].Message)
	}
	if details[0].Value != "sqlite" {
		t.Fatalf("reported value = %v, want sqlite", details[0].Value)
	}
}
