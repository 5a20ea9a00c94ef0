package install

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestActionByName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"server", false},
		{"extract", false},
		{"client", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ActionByName(tt.name, Deps{Profile: testProfile("http://unused")})
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownAction) {
					t.Errorf("ActionByName(%q) error = %v, want ErrUnknownAction", tt.name, err)
				}
				return
			}
			if err != nil || a == nil {
				t.Fatalf("ActionByName(%q) = %v, %v", tt.name, a, err)
			}
		})
	}
}

func TestExtractAction(t *testing.T) {
	target := t.TempDir()
	deps := Deps{Profile: testProfile("http://unused"), Archive: writeInstaller(t)}
	a := NewExtractAction(deps)

	if msg := a.PathError(target); msg != "" {
		t.Fatalf("PathError() = %q", msg)
	}
	if err := a.Run(context.Background(), target, ""); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(target, "loader-1.0-universal.jar"))
	if err != nil || string(data) != "loader" {
		t.Errorf("extracted = %q, %v", data, err)
	}
	if a.SuccessMessage() != "Extracted successfully" {
		t.Errorf("SuccessMessage() = %q", a.SuccessMessage())
	}
}

func TestExtractActionMissingTarget(t *testing.T) {
	a := NewExtractAction(Deps{Profile: testProfile("http://unused"), Archive: writeInstaller(t)})
	missing := filepath.Join(t.TempDir(), "nope")
	if err := a.Run(context.Background(), missing, ""); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("Run() error = %v, want ErrInvalidTarget", err)
	}
}

func TestExtractActionNoArchive(t *testing.T) {
	a := NewExtractAction(Deps{Profile: testProfile("http://unused")})
	if err := a.Run(context.Background(), t.TempDir(), ""); err == nil {
		t.Error("expected error without an installer archive")
	}
}
