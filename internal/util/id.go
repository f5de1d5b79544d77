package util

import (
	"strings"

	"github.com/google/uuid"
)

// LocalIDPrefix marks ids minted for documents that only exist in the
// local fallback store.
const LocalIDPrefix = "local"

// NewID returns a random UUID, as 32 hex digits, behind an optional prefix.
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix+"_")
}
