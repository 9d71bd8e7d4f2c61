package delta

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

type Op struct {
	Kind  Kind           `json:"kind"`
	Count int            `json:"count,omitempty"` // retain/delete length
	Text  string         `json:"text,omitempty"`  // insert text
	Attrs map[string]any `json:"attrs,omitempty"` // formatting attributes
}

// Delta is an ordered sequence of operations against a document, measured in
// runes from the start of the content.
type Delta []Op

// Len reports the length of content the delta walks over (retains plus
// deletes), used for bounds validation before applying.
func (d Delta) Len() int {
	n := 0
	for _, op := range d {
		switch op.Kind {
		case KindRetain, KindDelete:
			n += op.Count
		}
	}
	return n
}
