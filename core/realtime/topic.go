package realtime

// topicKind discriminates the Topic union.
type topicKind uint8

const (
	topicOrder topicKind = iota
	topicRider
	topicAdmin
)

// Topic identifies a fan-out channel. It is a small tagged union instead
// of a raw string so callers cannot publish to malformed topics.
type Topic struct {
	kind topicKind
	id   string
}

// OrderTopic addresses the observers of a single order (customer view,
// admin order detail).
func OrderTopic(orderID string) Topic { return Topic{kind: topicOrder, id: orderID} }

// RiderTopic addresses a single rider's app.
func RiderTopic(riderID string) Topic { return Topic{kind: topicRider, id: riderID} }

// AdminTopic addresses the admin console firehose.
func AdminTopic() Topic { return Topic{kind: topicAdmin} }

// String renders the canonical key, e.g. "order:42", "rider:7", "admin".
func (t Topic) String() string {
	switch t.kind {
	case topicOrder:
		return "order:" + t.id
	case topicRider:
		return "rider:" + t.id
	default:
		return "admin"
	}
}

// ID returns the order or rider id, empty for the admin topic.
func (t Topic) ID() string { return t.id }
