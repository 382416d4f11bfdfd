package schema

import (
	"bytes"
	"encoding/json"
)

// ConditionSet is one or more conditions combined with logical AND. OR
// composition is a recognized limitation of the document format, not an
// omission to work around here.
//
// The document form accepts either a single condition object or an array.
type ConditionSet []Condition

// UnmarshalJSON accepts {...} or [{...}, ...].
func (cs *ConditionSet) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []Condition
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*cs = list
		return nil
	}
	var single Condition
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*cs = ConditionSet{single}
	return nil
}

// MarshalJSON emits a bare object for a single condition, an array otherwise.
func (cs ConditionSet) MarshalJSON() ([]byte, error) {
	if len(cs) == 1 {
		return json.Marshal(cs[0])
	}
	return json.Marshal([]Condition(cs))
}

// UnmarshalYAML accepts a mapping or a sequence of mappings.
func (cs *ConditionSet) UnmarshalYAML(unmarshal func(any) error) error {
	var list []Condition
	if err := unmarshal(&list); err == nil {
		*cs = list
		return nil
	}
	var single Condition
	if err := unmarshal(&single); err != nil {
		return err
	}
	*cs = ConditionSet{single}
	return nil
}
