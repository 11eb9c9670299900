package kv

import "strings"

const reminderPrefix = "puntos:reminder:"

const (
	suffixLastDate = ":last_date"
	suffixContext  = ":context"
	suffixToken    = ":token"
	suffixDevice   = ":device"
	suffixPerm     = ":permission"
)

func LastDateKey(userID string) string   { return reminderPrefix + userID + suffixLastDate }
func ContextKey(userID string) string    { return reminderPrefix + userID + suffixContext }
func TokenKey(userID string) string      { return reminderPrefix + userID + suffixToken }
func DeviceKey(userID string) string     { return reminderPrefix + userID + suffixDevice }
func PermissionKey(userID string) string { return reminderPrefix + userID + suffixPerm }

// ContextPrefix matches every persisted user context.
func ContextPrefix() string { return reminderPrefix }

// UserFromContextKey extracts the user id from a key built by ContextKey.
func UserFromContextKey(key string) (string, bool) {
	if !strings.HasPrefix(key, reminderPrefix) || !strings.HasSuffix(key, suffixContext) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, reminderPrefix), suffixContext)
	return id, id != ""
}
