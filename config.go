package sealkv

import "log/slog"

// Config configures a Storage instance.
//
// Path is the filesystem location of the persistent store and is
// required. Password is optional: when empty, encryption is disabled
// for the lifetime of the instance; when set, values are encrypted
// under a store DEK sealed by a key derived from the password. The
// derived key is held only in memory and never persisted.
type Config struct {
	// Path is the directory holding the store's on-disk files.
	Path string

	// Password enables value encryption when non-empty.
	Password string

	// Policy overrides the password complexity policy. Nil applies
	// DefaultPasswordPolicy.
	Policy *PasswordPolicy

	// Logger receives structured logs. Nil applies slog.Default().
	Logger *slog.Logger
}

func (c Config) policy() PasswordPolicy {
	if c.Policy != nil {
		return *c.Policy
	}
	return DefaultPasswordPolicy()
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
