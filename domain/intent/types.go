package intent

import (
	"strings"

	"chatintent/internal/errors"
)

// UserType is the chatbot role an utterance belongs to.
type UserType string

const (
	UserTypeAdmin    UserType = "admin"
	UserTypeCustomer UserType = "customer"
)

// ParseUserType accepts exactly "admin" or "customer".
func ParseUserType(s string) (UserType, error) {
	switch UserType(s) {
	case UserTypeAdmin, UserTypeCustomer:
		return UserType(s), nil
	default:
		return "", errors.Configuration("unknown user_type %q (want admin or customer)", s)
	}
}

func (u UserType) String() string { return string(u) }

// QualifiedName builds the globally unique intent name "{user_type}_{key}".
func QualifiedName(userType UserType, key string) string {
	return string(userType) + "_" + key
}

// Sample is one labeled utterance. Values are copied, never mutated in place.
type Sample struct {
	Text     string   `json:"text"`
	Intent   string   `json:"intent"`
	UserType UserType `json:"user_type"`
}

// Validate enforces non-empty text and intent and a known user type.
func (s Sample) Validate() error {
	if strings.TrimSpace(s.Text) == "" {
		return errors.Configuration("sample text is empty (intent %q)", s.Intent)
	}
	if strings.TrimSpace(s.Intent) == "" {
		return errors.Configuration("sample intent is empty (text %q)", s.Text)
	}
	if _, err := ParseUserType(string(s.UserType)); err != nil {
		return err
	}
	return nil
}

// normalizeName is the aliasing key: two intents that normalize equally
// cannot coexist in one label space.
func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}
