package fs

import (
	"os"
	"strconv"
)

func safeInt64ToUint64(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}

// idFromEnv returns the numeric id in the named variable, or def.
func idFromEnv(name string, def uint32) uint32 {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		fsLogger.Warn("Ignoring invalid %s %q: %v", name, s, err)
		return def
	}
	fsLogger.Debug("Using %s from environment: %d", name, id)
	return uint32(id)
}
