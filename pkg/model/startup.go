package model

// StartupPolicy governs how the Relay Manager restores device state on
// daemon start (spec §4.8; the alternative left unnamed by the distilled
// spec is made explicit here).
type StartupPolicy string

const (
	// StartupSafeStart restores each device's configured SafeState instead
	// of its last-persisted state where the two differ.
	StartupSafeStart StartupPolicy = "safe_start"

	// StartupRestoreLast always restores the last persisted state,
	// regardless of SafeState. This is the default (spec §4.8 general
	// restore behavior).
	StartupRestoreLast StartupPolicy = "restore_last"
)
