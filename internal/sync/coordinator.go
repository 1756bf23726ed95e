// Package sync confirms cart mutations against the remote order service and
// classifies failures as transient or permanent. Transient failures are
// driven through the retry scheduler; permanent ones fail immediately so the
// caller can roll back.
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/harvestly/cart-engine/internal/retry"
	pkgerrors "github.com/harvestly/cart-engine/pkg/errors"
	"github.com/harvestly/cart-engine/pkg/logger"
	"github.com/harvestly/cart-engine/pkg/metrics"
)

// OrderClient is the narrow surface of the remote order service. Every
// operation is idempotent from the caller's perspective.
type OrderClient interface {
	AddToCart(ctx context.Context, productID string, quantity int) error
	UpdateCartItem(ctx context.Context, productID string, quantity int) error
	RemoveCartItem(ctx context.Context, productID string) error
	ClearCart(ctx context.Context) error
}

type Coordinator struct {
	client OrderClient
	sched  *retry.Scheduler
	logg   *logger.Logger
	met    *metrics.CartMetrics
}

func NewCoordinator(client OrderClient, sched *retry.Scheduler, logg *logger.Logger, met *metrics.CartMetrics) *Coordinator {
	return &Coordinator{client: client, sched: sched, logg: logg, met: met}
}

// Confirm drives a mutation to a final outcome. The scheduler re-attempts
// transient failures with backoff (the caller keeps its optimistic state and
// loading flag up while this blocks); permanent failures and exhausted
// budgets come back as failed so the caller rolls back.
func (c *Coordinator) Confirm(ctx context.Context, m Mutation) Outcome {
	err := c.sched.Do(ctx, m.Key(), func(ctx context.Context) error {
		return c.call(ctx, m)
	})
	if err == nil {
		c.met.IncMutation(string(m.Kind), "confirmed")
		return Outcome{Status: StatusConfirmed}
	}

	if errors.Is(err, retry.ErrCanceled) || errors.Is(err, context.Canceled) {
		c.met.IncMutation(string(m.Kind), "canceled")
		if c.logg != nil {
			logCtx := c.logg.WithProductID(ctx, m.ProductID)
			c.logg.Info(logCtx, "mutation superseded before confirmation")
		}
		return Outcome{Status: StatusCanceled}
	}

	c.met.IncMutation(string(m.Kind), "failed")
	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"product_id": m.ProductID,
			"kind":       string(m.Kind),
		})
		c.logg.Error(logCtx, "mutation confirmation failed", err)
	}
	return Outcome{Status: StatusFailed, Reason: failureReason(m.Kind, err)}
}

// CancelPending aborts scheduled retries for the product; a newer mutation
// supersedes the older intent.
func (c *Coordinator) CancelPending(productID string) {
	c.sched.Cancel(productID)
}

// CancelAll aborts every scheduled retry; called on session teardown.
func (c *Coordinator) CancelAll() {
	c.sched.CancelAll()
}

func (c *Coordinator) call(ctx context.Context, m Mutation) error {
	switch m.Kind {
	case KindAdd:
		return c.client.AddToCart(ctx, m.ProductID, m.Quantity)
	case KindUpdate:
		return c.client.UpdateCartItem(ctx, m.ProductID, m.Quantity)
	case KindRemove:
		return c.client.RemoveCartItem(ctx, m.ProductID)
	case KindClear:
		return c.client.ClearCart(ctx)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown mutation kind %q", m.Kind))
	}
}

func failureReason(kind Kind, err error) string {
	action := map[Kind]string{
		KindAdd:    "add the item to your cart",
		KindUpdate: "update the quantity",
		KindRemove: "remove the item",
		KindClear:  "clear your cart",
	}[kind]
	if action == "" {
		action = "update your cart"
	}

	detail := "something went wrong"
	if typed := pkgerrors.As(err); typed != nil {
		detail = pkgerrors.MetadataFor(typed.Code()).PublicMessage
	} else if pkgerrors.Retryable(err) {
		detail = "the order service is unreachable"
	}
	return fmt.Sprintf("couldn't %s: %s", action, detail)
}
