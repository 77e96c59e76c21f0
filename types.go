package accounts

import (
	"fmt"
	"strings"
	"time"
)

// Logger is the logging contract used across the package. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PasswordHasher produces and verifies password hashes.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Identity is the capability shared by both principal kinds. Refresh tokens
// are keyed by the Username/Email pair.
type Identity interface {
	ID() string
	Username() string
	Email() string
	Kind() PrincipalKind
}

// Clock returns the current time. Services accept one for tests.
type Clock func() time.Time

func normalizeClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] ACCOUNTS " + line(msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] ACCOUNTS " + line(msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] ACCOUNTS " + line(msg, args))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] ACCOUNTS " + line(msg, args))
}

func line(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	b.WriteString("\n")
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
