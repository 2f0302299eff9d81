package chat

import "strings"

// LocalIdentity is the operator's handle on the broker.
type LocalIdentity struct {
	// Label is what the operator typed, trimmed.
	Label string
	// BrokerID is the requested ID until the broker confirms one, then the
	// confirmed ID.
	BrokerID string

	confirmed bool
}

// Confirmed reports whether the broker has opened this identity.
func (id *LocalIdentity) Confirmed() bool { return id.confirmed }

// SanitizeID keeps only the ASCII digits of label.
func SanitizeID(label string) string {
	var sb strings.Builder
	for _, r := range label {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func newIdentity(label string) (*LocalIdentity, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, validation("please enter your number")
	}
	return &LocalIdentity{Label: label, BrokerID: SanitizeID(label)}, nil
}
