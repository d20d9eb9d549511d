package token

import (
	"errors"
	"testing"
)

func TestSubjectOfRawString(t *testing.T) {
	t.Parallel()

	subject, err := SubjectOf("  user-123  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "user-123" {
		t.Fatalf("expected trimmed subject, got %q", subject)
	}
}

func TestSubjectOfPreferenceOrder(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		identity Identity
		expected string
	}{
		{name: "id wins over legacy and subject", identity: Identity{ID: "a", LegacyID: "b", Subject: "c"}, expected: "a"},
		{name: "legacy wins over subject", identity: Identity{LegacyID: "b", Subject: "c"}, expected: "b"},
		{name: "subject as last resort", identity: Identity{Subject: "c"}, expected: "c"},
	}

	for _, testCase := range cases {
		subject, err := SubjectOf(testCase.identity)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", testCase.name, err)
		}
		if subject != testCase.expected {
			t.Fatalf("%s: expected %q, got %q", testCase.name, testCase.expected, subject)
		}
	}
}

func TestSubjectOfFailures(t *testing.T) {
	t.Parallel()

	inputs := []any{"", "   ", Identity{}, (*Identity)(nil), 42, nil}
	for _, input := range inputs {
		if _, err := SubjectOf(input); !errors.Is(err, ErrMissingSubject) {
			t.Fatalf("expected ErrMissingSubject for %#v, got %v", input, err)
		}
	}
}
