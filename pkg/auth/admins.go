package auth

import "strings"

// Authorizer answers capability checks for privileged ledger operations.
// The chat platform owns identity; the ledger only asks this one question.
type Authorizer interface {
	IsAdmin(userID, username string) bool
}

// AllowList authorizes administrators from a configured list. Entries
// starting with '@' match by username, everything else matches by user ID.
type AllowList struct {
	entries []string
}

// NewAllowList builds an allow-list authorizer. Blank entries are dropped.
func NewAllowList(entries []string) *AllowList {
	cleaned := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			cleaned = append(cleaned, entry)
		}
	}
	return &AllowList{entries: cleaned}
}

func (a *AllowList) IsAdmin(userID, username string) bool {
	for _, entry := range a.entries {
		if name, ok := strings.CutPrefix(entry, "@"); ok {
			if name == username {
				return true
			}
			continue
		}
		if entry == userID {
			return true
		}
	}
	return false
}
