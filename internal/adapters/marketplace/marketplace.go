package marketplace

// marketplace.go: endpoints del marketplace.
//
// SendOrder transmits once and queues the outcome; the runner delivers it
// to the bot as a separate acceptance or rejection event via DrainAcks.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/capmbot/internal/domain"
)

const (
	marketsPath  = "/markets"
	sessionPath  = "/session"
	holdingsPath = "/holdings"
	ordersPath   = "/orders"
)

// FetchMarkets devuelve el catálogo de mercados.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	var resp []marketDTO
	if err := c.get(ctx, marketsPath, &resp); err != nil {
		return nil, fmt.Errorf("marketplace.FetchMarkets: %w", err)
	}
	slog.Debug("marketplace: markets fetched", "count", len(resp))
	return mapMarkets(resp), nil
}

// FetchSession devuelve el estado de la sesión.
func (c *Client) FetchSession(ctx context.Context) (domain.Session, error) {
	var resp sessionDTO
	if err := c.get(ctx, sessionPath, &resp); err != nil {
		return domain.Session{}, fmt.Errorf("marketplace.FetchSession: %w", err)
	}
	return mapSession(resp), nil
}

// FetchHoldings devuelve las tenencias liquidadas del agente.
func (c *Client) FetchHoldings(ctx context.Context) (domain.Holdings, error) {
	var resp holdingsDTO
	if err := c.get(ctx, holdingsPath, &resp); err != nil {
		return domain.Holdings{}, fmt.Errorf("marketplace.FetchHoldings: %w", err)
	}
	return mapHoldings(resp), nil
}

// FetchOrderBook devuelve todas las órdenes conocidas, propias incluidas.
func (c *Client) FetchOrderBook(ctx context.Context) ([]domain.BookOrder, error) {
	var resp []orderDTO
	if err := c.get(ctx, ordersPath, &resp); err != nil {
		return nil, fmt.Errorf("marketplace.FetchOrderBook: %w", err)
	}
	return mapOrders(resp), nil
}

// SendOrder POSTs the order once, without retries, so each submission is
// exactly one transmission. A 2xx queues an acceptance and a 4xx queues a
// rejection carrying the response body. Transport and server failures are
// returned and nothing is queued.
func (c *Client) SendOrder(ctx context.Context, req domain.OrderRequest) error {
	var resp orderResponseDTO
	err := c.post(ctx, ordersPath, 0, toOrderRequest(req), &resp)

	if se, ok := isClientError(err); ok {
		c.queue(domain.OrderAck{Ref: req.Ref, Accepted: false, Reason: se.Body})
		return nil
	}
	if err != nil {
		return fmt.Errorf("marketplace.SendOrder: %s: %w", req.Ref, err)
	}

	slog.Debug("marketplace: order posted", "ref", req.Ref, "id", resp.ID)
	c.queue(domain.OrderAck{Ref: req.Ref, Accepted: true})
	return nil
}

// DrainAcks returns the queued outcomes in submission order and clears the queue.
func (c *Client) DrainAcks(ctx context.Context) ([]domain.OrderAck, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.acks
	c.acks = nil
	return out, nil
}

func (c *Client) queue(ack domain.OrderAck) {
	c.mu.Lock()
	c.acks = append(c.acks, ack)
	c.mu.Unlock()
}
