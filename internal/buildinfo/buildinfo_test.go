package buildinfo

import "testing"

func TestInfoStamped(t *testing.T) {
	old := Commit
	Commit = "abc123"
	defer func() { Commit = old }()
	info := Info()
	if info["commit"] != "abc123" {
		t.Fatalf("commit: got %q", info["commit"])
	}
	if info["version"] != Version {
		t.Fatalf("version: got %q", info["version"])
	}
}
