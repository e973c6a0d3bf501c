package types

// Event is a structured observation emitted by a successful command.
//
// Types are namespaced "<component>.<action>". Amount attributes are always
// string-encoded decimal magnitudes so downstream consumers never lose
// precision.
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// Attribute is a single key/value pair on an event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewEvent builds an event with alternating key/value attribute pairs.
// Panics on an odd pair count; event construction sites are all static.
func NewEvent(typ string, kv ...string) Event {
	if len(kv)%2 != 0 {
		panic("NewEvent: odd attribute count")
	}
	attrs := make([]Attribute, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		attrs = append(attrs, Attribute{Key: kv[i], Value: kv[i+1]})
	}
	return Event{Type: typ, Attributes: attrs}
}

// Attr appends an attribute and returns the event, for optional fields.
func (e Event) Attr(key, value string) Event {
	e.Attributes = append(e.Attributes, Attribute{Key: key, Value: value})
	return e
}

// Transfer is a declarative value-transfer instruction. Handlers return
// transfers alongside state mutations; the runtime settles them against the
// component's custodied balance only if the whole invocation commits.
type Transfer struct {
	Recipient AccountID `json:"recipient"`
	Amount    Coin      `json:"amount"`
}
