package interview

import (
	"fmt"
	"strings"
)

// Type is the interview flavour chosen at creation.
type Type string

const (
	TypeGeneral    Type = "general"
	TypeTechnical  Type = "technical"
	TypeBehavioral Type = "behavioral"
	TypeHR         Type = "hr"
	TypeMixed      Type = "mixed"
)

var Types = []Type{TypeGeneral, TypeTechnical, TypeBehavioral, TypeHR, TypeMixed}

func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return TypeGeneral, nil
	}
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown interview type %q", s)
}
