package domain

// Field is one name/value pair of an outbound payment request. Submission
// order is part of the gateway contract, so the descriptor keeps a slice
// rather than a map.
type Field struct {
	Name  string
	Value string
}

// PaymentRequestDescriptor tells the storefront where to send the buyer and
// exactly which form fields to post. Built per checkout attempt, never
// persisted.
type PaymentRequestDescriptor struct {
	TargetURL string
	Fields    []Field
}

// Values flattens the field list into a map, which is the shape the
// signature engine consumes.
func (d PaymentRequestDescriptor) Values() map[string]string {
	m := make(map[string]string, len(d.Fields))
	for _, f := range d.Fields {
		m[f.Name] = f.Value
	}
	return m
}
