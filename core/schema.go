package core

import "fmt"

// AttributeKind is the declared type of a user attribute.
type AttributeKind int

const (
	KindString AttributeKind = iota
	KindNumber
	KindBool
)

// AttributeSchema declares the integrator's user attribute bag: attribute
// name to expected kind. A nil schema accepts any attributes.
//
// The reserved username and password fields are modeled outside the bag and
// must not appear in it.
type AttributeSchema map[string]AttributeKind

// Validate checks attrs against the schema. Unknown attributes and kind
// mismatches are rejected before anything reaches storage.
func (s AttributeSchema) Validate(attrs map[string]any) error {
	if s == nil {
		return nil
	}
	for name, value := range attrs {
		kind, ok := s[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
		}
		if !kindMatches(kind, value) {
			return fmt.Errorf("%w: %q", ErrAttributeType, name)
		}
	}
	return nil
}

func kindMatches(kind AttributeKind, value any) bool {
	if value == nil {
		return true
	}
	switch kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindNumber:
		// JSON decoding yields float64; storage round-trips may yield ints.
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case KindBool:
		_, ok := value.(bool)
		return ok
	}
	return false
}
