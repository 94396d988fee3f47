package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// GetGravatarURL builds the avatar URL for a user's email. The profile page
// requests 200px, the admin user list 80px; non-positive sizes fall back to
// the profile size. Accounts without a Gravatar get the "mystery person"
// placeholder (d=mp).
func GetGravatarURL(email string, size int) string {
	if size <= 0 {
		size = 200
	}

	// Gravatar hashes the trimmed, lowercased address.
	normalized := strings.ToLower(strings.TrimSpace(email))
	hash := md5.Sum([]byte(normalized))

	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?s=%d&d=mp", hash, size)
}
