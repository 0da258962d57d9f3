package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns $WPPQ_HOME, or ~/.wppq when unset.
func BaseDir() string {
	if d := os.Getenv("WPPQ_HOME"); d != "" {
		return d
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wppq")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath returns the operator API socket for a session.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// SessionDBPath returns the whatsmeow device store path.
func SessionDBPath(name string) string {
	return filepath.Join(Dir(name), "session.db")
}

// AppDBPath returns the records and send log database path.
func AppDBPath(name string) string {
	return filepath.Join(Dir(name), "wppq.db")
}

func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

func LogPath(name string) string {
	return filepath.Join(LogDir(name), "wppqd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnvPath returns the optional dotenv file read on top of the config.
func EnvPath() string {
	return filepath.Join(BaseDir(), ".env")
}

// HolidaysPath returns the default holiday calendar location.
func HolidaysPath() string {
	return filepath.Join(BaseDir(), "holidays.yaml")
}

// EnsureDir creates the session directory tree with owner-only permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
