package util

import (
	"github.com/google/uuid"
)

// IsValidUUID accepts canonical hyphenated UUIDs only.
func IsValidUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
