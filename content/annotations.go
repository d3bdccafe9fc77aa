package content

import "fmt"

// Audience is a role a block may be addressed to.
type Audience string

const (
	AudienceUser      Audience = "user"
	AudienceAssistant Audience = "assistant"
)

const (
	annotationAudience = "audience"
	annotationPriority = "priority"
)

// AudienceOf returns the audience annotation of a block. ok is false when the
// block carries no usable audience annotation, which means it is addressed to
// everyone.
func AudienceOf(b Block) (roles []Audience, ok bool) {
	if b == nil {
		return nil, false
	}
	raw, present := b.Annotations()[annotationAudience]
	if !present || raw == nil {
		return nil, false
	}
	switch v := raw.(type) {
	case []string:
		for _, s := range v {
			roles = append(roles, Audience(s))
		}
	case []interface{}:
		for _, item := range v {
			if s, isString := item.(string); isString {
				roles = append(roles, Audience(s))
			}
		}
	case []Audience:
		roles = append(roles, v...)
	case string:
		roles = append(roles, Audience(v))
	default:
		return nil, false
	}
	return roles, true
}

// VisibleTo reports whether a block should be shown to the given audience.
// A block without an audience annotation is visible to every audience; a
// block with one is visible only to its members.
func VisibleTo(b Block, audience Audience) bool {
	roles, ok := AudienceOf(b)
	if !ok {
		return true
	}
	for _, r := range roles {
		if r == audience {
			return true
		}
	}
	return false
}

// Priority returns the priority annotation (0-1) of a block, if any.
func Priority(b Block) (float64, bool) {
	if b == nil {
		return 0, false
	}
	switch v := b.Annotations()[annotationPriority].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// ParseAudience converts a string into an Audience.
func ParseAudience(s string) (Audience, error) {
	switch Audience(s) {
	case AudienceUser, AudienceAssistant:
		return Audience(s), nil
	default:
		return "", fmt.Errorf("unknown audience %q (want %q or %q)", s, AudienceUser, AudienceAssistant)
	}
}
