package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathsUnderHome(t *testing.T) {
	base := t.TempDir()
	t.Setenv("WPPQ_HOME", base)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"dir", Dir("main"), filepath.Join(base, "sessions", "main")},
		{"socket", SocketPath("main"), filepath.Join(base, "sessions", "main", "daemon.sock")},
		{"lock", LockPath("main"), filepath.Join(base, "sessions", "main", "LOCK")},
		{"app db", AppDBPath("main"), filepath.Join(base, "sessions", "main", "wppq.db")},
		{"log", LogPath("main"), filepath.Join(base, "sessions", "main", "logs", "wppqd.log")},
		{"config", ConfigPath(), filepath.Join(base, "config.toml")},
		{"holidays", HolidaysPath(), filepath.Join(base, "holidays.yaml")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestBaseDirDefault(t *testing.T) {
	t.Setenv("WPPQ_HOME", "")
	home, _ := os.UserHomeDir()
	if got, want := BaseDir(), filepath.Join(home, ".wppq"); got != want {
		t.Errorf("BaseDir() = %q, want %q", got, want)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv("WPPQ_HOME", t.TempDir())

	if err := EnsureDir("office"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(LogDir("office"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("log dir permission = %o, want 0700", perm)
	}
}
