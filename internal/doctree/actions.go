package doctree

// ActionMapping binds an element event to a server-side action. Target and
// input references point at other nodes of the same tree.
type ActionMapping struct {
	ID             string             `json:"id"`
	ElementID      string             `json:"elementId"`
	Event          string             `json:"event"`
	Action         string             `json:"action"`
	SuccessTargets []string           `json:"successTargets,omitempty"`
	FailureTargets []string           `json:"failureTargets,omitempty"`
	Parameters     []ParameterMapping `json:"parameters,omitempty"`
}

// ParameterMapping feeds one action parameter, either from an input element
// or from a constant.
type ParameterMapping struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	InputElementID string `json:"inputElementId,omitempty"`
	ConstantValue  string `json:"constantValue,omitempty"`
}

// Remap returns a copy of m owned by elementID with every node reference
// found in ids replaced by its mapped value. References outside ids are kept.
func (m *ActionMapping) Remap(elementID string, ids map[string]string) *ActionMapping {
	c := &ActionMapping{
		ID:        NewID(),
		ElementID: elementID,
		Event:     m.Event,
		Action:    m.Action,
	}
	c.SuccessTargets = remapIDs(m.SuccessTargets, ids)
	c.FailureTargets = remapIDs(m.FailureTargets, ids)
	for _, p := range m.Parameters {
		if mapped, ok := ids[p.InputElementID]; ok {
			p.InputElementID = mapped
		}
		c.Parameters = append(c.Parameters, p)
	}
	return c
}

func remapIDs(in []string, ids map[string]string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, id := range in {
		if mapped, ok := ids[id]; ok {
			out[i] = mapped
		} else {
			out[i] = id
		}
	}
	return out
}

// Copy returns a deep copy of m with the same id.
func (m *ActionMapping) Copy() *ActionMapping {
	c := *m
	c.SuccessTargets = append([]string(nil), m.SuccessTargets...)
	c.FailureTargets = append([]string(nil), m.FailureTargets...)
	c.Parameters = append([]ParameterMapping(nil), m.Parameters...)
	return &c
}
