// Package normalize converts source values into the typed representation a
// destination column expects, and maps source records onto destination
// field labels.
package normalize

import (
	"strconv"
	"strings"

	"github.com/agentstation/rowsync/pkg/errors"
)

// Kind is the type of a destination column.
type Kind string

// Supported kinds. Unknown kinds are treated as KindText.
const (
	KindText     Kind = "text"
	KindNumber   Kind = "number"
	KindBoolean  Kind = "boolean"
	KindJSON     Kind = "json"
	KindDatetime Kind = "datetime"
)

// codes are the destination's numeric type codes.
var codes = map[int]Kind{
	1: KindText,
	2: KindNumber,
	3: KindBoolean,
	4: KindJSON,
	5: KindDatetime,
}

// ParseKind accepts a kind name or its numeric type code.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if k, ok := codes[n]; ok {
			return k, nil
		}
		return "", errors.NewValidationError("kind", s, "unknown type code")
	}
	switch Kind(s) {
	case KindText, KindNumber, KindBoolean, KindJSON, KindDatetime:
		return Kind(s), nil
	case "":
		return KindText, nil
	case "string":
		return KindText, nil
	case "bool":
		return KindBoolean, nil
	case "date", "time", "timestamp":
		return KindDatetime, nil
	}
	return "", errors.NewValidationError("kind", s, "unknown kind")
}

// Code returns the destination type code for k.
func (k Kind) Code() int {
	for code, kind := range codes {
		if kind == k {
			return code
		}
	}
	return 1
}

// UnmarshalText implements encoding.TextUnmarshaler so kinds can be read
// from job files by name or code.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k == "" {
		return string(KindText)
	}
	return string(k)
}
