package types

// Event is the canonical structured payload describing a state change. The
// attribute values are strings so payloads can cross any transport unchanged.
type Event struct {
	Type       string
	Attributes map[string]string
}
