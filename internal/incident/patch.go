package incident

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/types"
)

// Field is an optional patch value. Set reports whether the key was present,
// so an explicit null can be told apart from an absent key.
type Field[T any] struct {
	Set   bool
	Value T
}

// Some returns a set field.
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Patch holds the editable incident fields. Anything else a client sends is
// dropped by SanitizePatch.
type Patch struct {
	Title       Field[string]
	Description Field[string]
	Status      Field[models.IncidentStatus]
	Severity    Field[models.Severity]
	AssigneeID  Field[*uint]
	ServiceID   Field[*uint]
	ResolvedAt  Field[*time.Time]
}

// Empty reports whether the patch edits nothing.
func (p Patch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Status.Set && !p.Severity.Set &&
		!p.AssigneeID.Set && !p.ServiceID.Set && !p.ResolvedAt.Set
}

// SanitizePatch decodes the allow-listed keys of a JSON object body. Unknown
// keys are ignored, not rejected.
func SanitizePatch(raw map[string]json.RawMessage) (Patch, error) {
	var p Patch
	var err error

	for key, value := range raw {
		switch key {
		case "title":
			p.Title, err = decodeString(key, value)
			if err == nil && strings.TrimSpace(p.Title.Value) == "" {
				err = fmt.Errorf("%w: title cannot be empty", types.ErrInvalidInput)
			}
		case "description":
			p.Description, err = decodeString(key, value)
		case "status":
			var s Field[string]
			if s, err = decodeString(key, value); err == nil {
				status := models.IncidentStatus(strings.ToLower(s.Value))
				if !status.Valid() {
					err = fmt.Errorf("%w: unknown status %q", types.ErrInvalidInput, s.Value)
				}
				p.Status = Some(status)
			}
		case "severity":
			var s Field[string]
			if s, err = decodeString(key, value); err == nil {
				severity := models.Severity(strings.ToLower(s.Value))
				if !severity.Valid() {
					err = fmt.Errorf("%w: unknown severity %q", types.ErrInvalidInput, s.Value)
				}
				p.Severity = Some(severity)
			}
		case "assignee_id":
			p.AssigneeID, err = decodeNullable[uint](key, value)
		case "service_id":
			p.ServiceID, err = decodeNullable[uint](key, value)
		case "resolved_at":
			p.ResolvedAt, err = decodeNullable[time.Time](key, value)
		}

		if err != nil {
			return Patch{}, err
		}
	}

	return p, nil
}

func decodeString(key string, value json.RawMessage) (Field[string], error) {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return Field[string]{}, fmt.Errorf("%w: %s must be a string", types.ErrInvalidInput, key)
	}
	return Some(s), nil
}

func decodeNullable[T any](key string, value json.RawMessage) (Field[*T], error) {
	if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		return Some[*T](nil), nil
	}

	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return Field[*T]{}, fmt.Errorf("%w: malformed %s", types.ErrInvalidInput, key)
	}
	return Some(&v), nil
}
