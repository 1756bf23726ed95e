package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/harvestly/cart-engine/pkg/config"
	pkgerrors "github.com/harvestly/cart-engine/pkg/errors"
)

// HTTPClient talks to the remote order service over its four cart
// endpoints. Timeouts and transport failures surface as retryable errors;
// remote rejections map by status code.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(cfg config.OrderServiceConfig) (*HTTPClient, error) {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("order service base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parsing order service URL: %w", err)
	}
	return &HTTPClient{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity,omitempty"`
}

type cartItemResponse struct {
	Success bool `json:"success"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *HTTPClient) AddToCart(ctx context.Context, productID string, quantity int) error {
	return c.do(ctx, http.MethodPost, "/cart/items", &cartItemRequest{ProductID: productID, Quantity: quantity})
}

func (c *HTTPClient) UpdateCartItem(ctx context.Context, productID string, quantity int) error {
	path := "/cart/items/" + url.PathEscape(productID)
	return c.do(ctx, http.MethodPatch, path, &cartItemRequest{Quantity: quantity})
}

func (c *HTTPClient) RemoveCartItem(ctx context.Context, productID string) error {
	path := "/cart/items/" + url.PathEscape(productID)
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *HTTPClient) ClearCart(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/cart", nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return pkgerrors.FromHTTPStatus(resp.StatusCode, remoteMessage(resp.Body, resp.StatusCode))
}

// classifyTransportError keeps timeouts distinct from other connection
// failures; both are transient.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "order service timed out")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order service unreachable")
}

func remoteMessage(body io.Reader, status int) string {
	var decoded cartItemResponse
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&decoded); err == nil {
		if decoded.Error != nil && decoded.Error.Message != "" {
			return decoded.Error.Message
		}
	}
	return fmt.Sprintf("order service returned status %d", status)
}
