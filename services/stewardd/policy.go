package stewardd

import (
	"encoding/json"
	"fmt"
	"strings"

	"cronosquity/native/steward"
)

// ParsePolicy decodes a program's policy document. Registries store the policy
// JSON inline in the policy URI field; anything that is not a JSON object with
// the documented shape is an error for the caller to resolve.
func ParsePolicy(document string) (steward.Policy, error) {
	trimmed := strings.TrimSpace(document)
	if trimmed == "" {
		return steward.Policy{}, fmt.Errorf("policy document empty")
	}
	var policy steward.Policy
	if err := json.Unmarshal([]byte(trimmed), &policy); err != nil {
		return steward.Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	return policy, nil
}
