package studio

import (
	"log"
	"sync/atomic"
)

// debugEnabled gates verbose logging for the engine and the surfaces built
// on it
var debugEnabled atomic.Bool

// SetDebugEnabled turns verbose logging on or off
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// IsDebugEnabled returns whether debug logging is enabled
func IsDebugEnabled() bool {
	return debugEnabled.Load()
}

func debugLog(format string, args ...interface{}) {
	if IsDebugEnabled() {
		log.Printf("[studio] "+format, args...)
	}
}
