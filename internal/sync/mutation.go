package sync

// Kind names a cart mutation the remote order service can confirm.
type Kind string

const (
	KindAdd    Kind = "add"
	KindUpdate Kind = "update"
	KindRemove Kind = "remove"
	KindClear  Kind = "clear"
)

// Mutation is the descriptor handed to the coordinator. Quantity is unused
// for remove and clear.
type Mutation struct {
	Kind      Kind
	ProductID string
	Quantity  int
}

// Key scopes retry scheduling and cancellation. Mutations for the same
// product share a key so a newer mutation can supersede an older retry;
// clear owns its own key.
func (m Mutation) Key() string {
	if m.Kind == KindClear {
		return "cart:clear"
	}
	return m.ProductID
}

// Status is the final classification of a confirmation attempt.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Outcome reports how a mutation resolved. Reason is a user-facing message,
// set only for failures.
type Outcome struct {
	Status Status
	Reason string
}

func (o Outcome) Confirmed() bool { return o.Status == StatusConfirmed }
func (o Outcome) Canceled() bool  { return o.Status == StatusCanceled }
