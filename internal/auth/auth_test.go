package auth

import (
	"context"
	"errors"
	"testing"
)

func TestRequire(t *testing.T) {
	a := NewStatic(false, CameraAccess)
	if err := Require(a, CameraAccess); err != nil {
		t.Errorf("Require(camera) = %v", err)
	}
	err := Require(a, Required...)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if got := err.Error(); got != "permission denied: storage_write" {
		t.Errorf("message = %q", got)
	}
}

func TestStatic_Request(t *testing.T) {
	cases := []struct {
		name      string
		autoGrant bool
		want      bool
	}{
		{"prompt_accepted", true, true},
		{"prompt_refused", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewStatic(tc.autoGrant)
			ok, err := a.Request(context.Background(), Required...)
			if err != nil {
				t.Fatal(err)
			}
			if ok != tc.want || a.Granted(Required...) != tc.want {
				t.Errorf("Request = %v, Granted = %v, want %v", ok, a.Granted(Required...), tc.want)
			}
			if a.Requests() != 1 {
				t.Errorf("Requests = %d", a.Requests())
			}
		})
	}
}

func TestStatic_GrantRevoke(t *testing.T) {
	a := NewStatic(false)
	a.Grant(CameraAccess, StorageWrite)
	if !a.Granted(Required...) {
		t.Fatal("grants not held")
	}
	a.Revoke(StorageWrite)
	if a.Granted(StorageWrite) || !a.Granted(CameraAccess) {
		t.Error("revoke removed the wrong grant")
	}
}

func TestStatic_RequestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStatic(true).Request(ctx, CameraAccess); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestParseCapability(t *testing.T) {
	for _, name := range []string{"camera", "storage_write"} {
		if _, err := ParseCapability(name); err != nil {
			t.Errorf("ParseCapability(%q) = %v", name, err)
		}
	}
	if _, err := ParseCapability("microphone"); err == nil {
		t.Error("expected error for unknown capability")
	}
}
