package securechannel

import "log/slog"

// logDebug is a nil-safe wrapper so Session never requires a logger: a nil
// *slog.Logger is a valid, silent default.
func logDebug(logger *slog.Logger, msg string, args ...any) {
	if logger == nil {
		return
	}
	logger.Debug(msg, args...)
}

// SessionOption configures optional Session behavior at construction time.
type SessionOption func(*Session)

// WithLogger attaches a *slog.Logger that Session uses to report
// state transitions (open<->closed, pairing established, SW 0x6982) at
// Debug level. It never logs key material, PINs, or plaintext. A nil
// logger (the default) disables logging entirely.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}
