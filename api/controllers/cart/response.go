package cart

import (
	"github.com/harvestly/cart-engine/internal/boundary"
	cartstore "github.com/harvestly/cart-engine/internal/cart"
)

// MutationView reports whether the mutation was applied and confirmed,
// alongside the settled read model. A false Applied with an empty LastError
// means the mutation was rejected locally or superseded by a newer one.
type MutationView struct {
	Applied bool               `json:"applied"`
	Cart    cartstore.Snapshot `json:"cart"`
}

type BackupView struct {
	HasBackup bool `json:"hasBackup"`
}

type RecoveryView struct {
	Recovered bool               `json:"recovered"`
	Cart      cartstore.Snapshot `json:"cart"`
}

type RenderStatusView struct {
	State       string `json:"state"`
	RetriesUsed int    `json:"retriesUsed"`
	MaxRetries  int    `json:"maxRetries"`
}

func newMutationView(applied bool, snap cartstore.Snapshot) MutationView {
	return MutationView{Applied: applied, Cart: snap}
}

func newRenderStatusView(b *boundary.Boundary) RenderStatusView {
	state, retries, max := b.Status()
	return RenderStatusView{State: string(state), RetriesUsed: retries, MaxRetries: max}
}
