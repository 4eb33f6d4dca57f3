package styles

// Status icons used by `orderly status`.
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconRunning = "▶"
	IconPending = "○"
	IconSkipped = "⊘"
)

// StatusIcon returns the icon for a simple alive/dead boolean.
func StatusIcon(alive bool) string {
	if alive {
		return IconSuccess
	}
	return IconError
}

// LifecycleIcon maps an actor lifecycle name to the icon shown next to it
// in the status table.
func LifecycleIcon(lifecycle string) string {
	switch lifecycle {
	case "Running":
		return IconSuccess
	case "Failed":
		return IconError
	case "Starting", "ShuttingDown":
		return IconRunning
	case "CleanedUp":
		return IconSkipped
	default: // NotStarted
		return IconPending
	}
}
