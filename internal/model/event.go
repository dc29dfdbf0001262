package model

// RawLog keeps the undecoded topics and data of a log so a failed decode still
// stores the original bytes.
type RawLog struct {
	Topics []string `json:"topics"`
	Data   string   `json:"data"`
}

// DecodedEvent is the result of decoding one event log. Name is empty when
// decoding failed at every fallback stage; Raw is always populated.
type DecodedEvent struct {
	Address  string     `json:"address"`
	Topic0   string     `json:"topic0"`
	LogIndex uint64     `json:"log_index"`
	Name     string     `json:"name,omitempty"`
	Args     []Argument `json:"args,omitempty"`
	Raw      RawLog     `json:"raw"`
}
