package catalog

import (
	"encoding/json"
	"strings"

	dErrors "permit/pkg/domain-errors"
)

// Module is a named feature area of the application (e.g. "pos", "inventory").
// Deactivation hides a module from new grants without deleting history.
type Module struct {
	Key         string
	DisplayName string
	Icon        string
	Active      bool
}

// Action is a named operation that modules can expose. Sensitive actions
// elevate the audit risk level on grants and denials; RequiresApproval is
// surfaced to callers that implement four-eyes flows.
type Action struct {
	Key              string
	DisplayName      string
	IsSensitive      bool
	RequiresApproval bool
}

// Pair identifies a (module, action) permission surface entry. Only pairs
// declared in the catalog may be granted.
type Pair struct {
	ModuleKey string
	ActionKey string
}

func (p Pair) String() string {
	return p.ModuleKey + ":" + p.ActionKey
}

// MarshalJSON encodes the pair as its "module:action" key, the same form
// callers submit and stores persist.
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParsePair(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePair parses "module:action" as submitted by callers.
func ParsePair(raw string) (Pair, error) {
	moduleKey, actionKey, ok := strings.Cut(raw, ":")
	if !ok || moduleKey == "" || actionKey == "" {
		return Pair{}, dErrors.New(dErrors.CodeValidation, "permission must be in module:action form")
	}
	return Pair{ModuleKey: moduleKey, ActionKey: actionKey}, nil
}
