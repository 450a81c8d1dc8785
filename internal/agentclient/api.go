package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"commerce-agent/internal/errs"
	"commerce-agent/internal/models"
)

// Status mirrors GET /api/status
type Status struct {
	Backend string `json:"backend"`
	Catalog string `json:"catalog"`
}

// doJSON runs one request-response call, bounded by the connect timeout
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.requestError(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if reqCtx.Err() != nil {
			return c.requestError(ctx, reqCtx, err)
		}
		return fmt.Errorf("%w: decode %s: %w", errs.ErrUpstream, path, err)
	}
	return nil
}

// requestError tells a caller cancel apart from the call's own deadline
func (c *Client) requestError(ctx, reqCtx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", errs.ErrCanceled, ctx.Err())
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: request timeout after %s", errs.ErrTransport, c.connectTimeout)
	default:
		return fmt.Errorf("%w: %w", errs.ErrTransport, err)
	}
}

// Search queries the catalog. Results are cached per trimmed,
// lower-cased query.
func (c *Client) Search(ctx context.Context, query string) ([]models.CatalogItem, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if items, ok := c.searchCache.Get(ctx, key); ok {
		return items, nil
	}

	var out struct {
		Items []models.CatalogItem `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/catalog/search?q="+url.QueryEscape(query), nil, &out); err != nil {
		return nil, err
	}
	c.searchCache.Set(ctx, key, out.Items)
	return out.Items, nil
}

// CreateOrder places an order directly, bypassing the chat negotiation
func (c *Client) CreateOrder(ctx context.Context, itemID string, quantity int) (models.OrderRecord, error) {
	in := struct {
		ItemID   string `json:"itemId"`
		Quantity int    `json:"quantity"`
	}{ItemID: itemID, Quantity: quantity}

	var out models.OrderRecord
	if err := c.doJSON(ctx, http.MethodPost, "/api/orders", in, &out); err != nil {
		return models.OrderRecord{}, err
	}
	return out, nil
}

// ListOrders returns all orders in placement order
func (c *Client) ListOrders(ctx context.Context) ([]models.OrderRecord, error) {
	var out struct {
		Orders []models.OrderRecord `json:"orders"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/orders", nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

// Status reports the server's LLM and catalog backends
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.doJSON(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}
