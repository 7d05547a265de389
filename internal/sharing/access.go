package sharing

import (
	"fmt"
	"strings"
)

// AccessLevel is the permission granted with a share. It implements
// pflag.Value so commands can take it as a flag.
type AccessLevel string

const (
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
	AccessAdmin AccessLevel = "admin"
)

// AccessLevels lists every accepted level.
var AccessLevels = []AccessLevel{AccessRead, AccessWrite, AccessAdmin}

// ParseAccessLevel validates s.
func ParseAccessLevel(s string) (AccessLevel, error) {
	level := AccessLevel(strings.ToLower(strings.TrimSpace(s)))
	for _, l := range AccessLevels {
		if level == l {
			return level, nil
		}
	}
	return "", fmt.Errorf("invalid access level %q (expected read, write or admin)", s)
}

func (l AccessLevel) String() string { return string(l) }

func (l *AccessLevel) Set(s string) error {
	parsed, err := ParseAccessLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l *AccessLevel) Type() string { return "access-level" }
