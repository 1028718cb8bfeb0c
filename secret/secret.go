// Package secret masks sensitive configuration values, like storage passwords,
// so they do not end up in logs or dumped configuration by accident.
package secret

import (
	"encoding/json"
	"log/slog"
)

const mask = "******"

func New(value string) Secret {
	return Secret{value: &value}
}

// Secret masks its value in every representation except Secret.
// The zero value is an empty secret.
type Secret struct {
	// value is a pointer, so it is not printed by fmt verbs like %+v.
	value *string
}

var (
	_ slog.LogValuer   = Secret{}
	_ json.Marshaler   = Secret{}
	_ json.Unmarshaler = (*Secret)(nil)
)

// Secret returns the unmasked value.
func (s Secret) Secret() string {
	if s.value == nil {
		return ""
	}

	return *s.value
}

// IsEmpty reports whether no value is set.
func (s Secret) IsEmpty() bool {
	return s.Secret() == ""
}

func (s Secret) String() string {
	return mask
}

func (s Secret) LogValue() slog.Value {
	return slog.StringValue(mask)
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(mask) //nolint:wrapcheck
}

func (s *Secret) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err //nolint:wrapcheck
	}

	s.value = &value

	return nil
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(mask), nil
}

// UnmarshalText makes Secret decodable by viper, see mapstructure.TextUnmarshallerHookFunc.
func (s *Secret) UnmarshalText(data []byte) error {
	value := string(data)
	s.value = &value

	return nil
}
