package logger

// Verbosity level constants for CLI flag counts (-v, -vv).
// A verbosity flag overrides the configured log level when it asks for more output.
const (
	VerbosityDefault = 0 // No flags: configured level
	VerbosityInfo    = 1 // -v: at least info
	VerbosityDebug   = 2 // -vv: debug
)

// LevelForVerbosity returns the level name to use given the configured level and
// the number of -v flags on the command line.
func LevelForVerbosity(configured string, verbosity int) string {
	switch {
	case verbosity >= VerbosityDebug:
		return "debug"
	case verbosity == VerbosityInfo:
		if lvl, err := ParseLevel(configured); err == nil && lvl.String() == "debug" {
			return configured
		}
		return "info"
	default:
		return configured
	}
}
