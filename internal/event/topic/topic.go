package topic

import "strings"

// Topic is a dotted event name such as "build.progress" or, when used as a
// subscription pattern, "build.*" or "supervisor.**".
type Topic string

// Wildcard constants for pattern matching.
const (
	// WildcardSingle matches exactly one segment.
	WildcardSingle = "*"

	// WildcardMulti matches zero or more segments.
	WildcardMulti = "**"

	// Separator is the character used to separate topic segments.
	Separator = "."
)

// String returns the topic as a string.
func (t Topic) String() string {
	return string(t)
}

// Segments returns the topic split by the separator.
func (t Topic) Segments() []string {
	if t == "" {
		return nil
	}
	return strings.Split(string(t), Separator)
}

// Root returns the first segment.
//
// Example: "worker.stderr" -> "worker"
func (t Topic) Root() string {
	s := string(t)
	if idx := strings.Index(s, Separator); idx >= 0 {
		return s[:idx]
	}
	return s
}

// IsWildcard returns true if the topic contains any wildcard characters.
func (t Topic) IsWildcard() bool {
	return strings.Contains(string(t), WildcardSingle)
}

// IsValid reports whether t is a concrete event name: non-empty, no empty
// segments and no wildcards.
func (t Topic) IsValid() bool {
	if t == "" {
		return false
	}
	for _, seg := range t.Segments() {
		if seg == "" || strings.Contains(seg, WildcardSingle) {
			return false
		}
	}
	return true
}

// IsValidPattern reports whether t can be used as a subscription pattern.
// Wildcards must occupy a whole segment.
func (t Topic) IsValidPattern() bool {
	if t == "" {
		return false
	}
	for _, seg := range t.Segments() {
		switch {
		case seg == "":
			return false
		case seg == WildcardSingle, seg == WildcardMulti:
		case strings.Contains(seg, WildcardSingle):
			return false
		}
	}
	return true
}

// Matches returns true if this topic matches the given pattern.
func (t Topic) Matches(pattern Topic) bool {
	return matchSegments(t.Segments(), pattern.Segments())
}

func matchSegments(topic, pattern []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == WildcardMulti {
			rest := pattern[1:]
			for i := 0; i <= len(topic); i++ {
				if matchSegments(topic[i:], rest) {
					return true
				}
			}
			return false
		}
		if len(topic) == 0 {
			return false
		}
		if pattern[0] != WildcardSingle && pattern[0] != topic[0] {
			return false
		}
		topic, pattern = topic[1:], pattern[1:]
	}
	return len(topic) == 0
}

// Join joins segments into a topic.
func Join(segments ...string) Topic {
	return Topic(strings.Join(segments, Separator))
}
