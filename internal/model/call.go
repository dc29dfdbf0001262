package model

// Operation is the Safe call operation kind.
type Operation uint8

const (
	OpCall         Operation = 0
	OpDelegateCall Operation = 1
)

// String returns the canonical operation name.
func (op Operation) String() string {
	if op == OpDelegateCall {
		return "DelegateCall"
	}
	return "Call"
}

// Argument is a single decoded parameter of a call or event.
type Argument struct {
	Name    string      `json:"name"`
	Type    string      `json:"type"`
	Value   interface{} `json:"value"`
	Indexed bool        `json:"indexed,omitempty"`
}

// DecodedCall is the result of decoding one function call. FunctionName is
// empty when every decode stage failed; Data always carries the raw input so
// nothing is lost on failure.
type DecodedCall struct {
	To             string     `json:"to"`
	Value          string     `json:"value"`
	Operation      Operation  `json:"operation"`
	Data           string     `json:"data"`
	FunctionName   string     `json:"function_name,omitempty"`
	Args           []Argument `json:"args,omitempty"`
	Implementation string     `json:"implementation,omitempty"`
}

// IsValueTransfer reports whether the call carries no calldata.
func (c DecodedCall) IsValueTransfer() bool {
	return c.Data == "" || c.Data == "0x"
}
