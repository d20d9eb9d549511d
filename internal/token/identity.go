package token

import (
	"fmt"
	"strings"
)

// Identity describes the subject a token is minted for. Callers populate
// whichever id field their layer carries; SubjectOf resolves them with a
// fixed preference order so tokens minted from a store record, a decoded
// claim set, or a legacy document all agree on the subject.
type Identity struct {
	ID       string
	LegacyID string
	Subject  string
	Email    string
	Username string
}

// SubjectOf derives a subject id from an identity descriptor. Accepted
// descriptors: a raw string id, an Identity, or a *Identity. Id fields are
// consulted in preference order ID, LegacyID, Subject.
func SubjectOf(descriptor any) (string, error) {
	switch value := descriptor.(type) {
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return "", fmt.Errorf("token.identity: %w", ErrMissingSubject)
		}
		return trimmed, nil
	case Identity:
		return subjectOfIdentity(value)
	case *Identity:
		if value == nil {
			return "", fmt.Errorf("token.identity: %w", ErrMissingSubject)
		}
		return subjectOfIdentity(*value)
	default:
		return "", fmt.Errorf("token.identity: %w", ErrMissingSubject)
	}
}

func subjectOfIdentity(identity Identity) (string, error) {
	for _, candidate := range []string{identity.ID, identity.LegacyID, identity.Subject} {
		trimmed := strings.TrimSpace(candidate)
		if trimmed != "" {
			return trimmed, nil
		}
	}
	return "", fmt.Errorf("token.identity: %w", ErrMissingSubject)
}
