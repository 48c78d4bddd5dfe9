package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/walletpilot/walletpilot/chains"
	"github.com/walletpilot/walletpilot/swaps"
)

// Order is one row of swap history. Live attempts stay in memory; only the
// resulting order is durable, so status polling can resume across restarts.
type Order struct {
	ID           int64             `json:"id"`
	SwapID       string            `json:"swap_id"`
	ChatID       int64             `json:"chat_id"`
	MessageID    int64             `json:"message_id"`
	UserID       int64             `json:"user_id"`
	SrcChainID   chains.ID         `json:"src_chain_id"`
	DstChainID   chains.ID         `json:"dst_chain_id"`
	SrcToken     string            `json:"src_token"`
	DstToken     string            `json:"dst_token"`
	Amount       string            `json:"amount"`
	Status       swaps.OrderStatus `json:"status"`
	OrderHash    string            `json:"order_hash,omitempty"`
	ApprovalTx   string            `json:"approval_tx,omitempty"`
	SwapTx       string            `json:"swap_tx,omitempty"`
	ErrorDetails string            `json:"error_details,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

const orderColumns = `id, swap_id, chat_id, message_id, user_id, src_chain_id, dst_chain_id,
	src_token, dst_token, amount, status, order_hash, approval_tx, swap_tx, error_details,
	created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.SwapID, &o.ChatID, &o.MessageID, &o.UserID,
		&o.SrcChainID, &o.DstChainID, &o.SrcToken, &o.DstToken, &o.Amount,
		&o.Status, &o.OrderHash, &o.ApprovalTx, &o.SwapTx, &o.ErrorDetails,
		&o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// InsertOrder records a freshly prepared order.
func (s *Store) InsertOrder(ctx context.Context, o Order) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO orders (swap_id, chat_id, message_id, user_id, src_chain_id, dst_chain_id,
			src_token, dst_token, amount, status, order_hash, approval_tx, swap_tx, error_details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.SwapID, o.ChatID, o.MessageID, o.UserID, o.SrcChainID, o.DstChainID,
		o.SrcToken, o.DstToken, o.Amount, o.Status, o.OrderHash, o.ApprovalTx, o.SwapTx, o.ErrorDetails,
	)
	if err != nil {
		return fmt.Errorf("inserting order %s: %w", o.SwapID, err)
	}
	return nil
}

// UpdateOrderStatus moves an order to a new status, recording the order hash
// and error details when present.
func (s *Store) UpdateOrderStatus(ctx context.Context, swapID string, status swaps.OrderStatus, orderHash, errorDetails string) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE orders
		SET status = ?,
			order_hash = CASE WHEN ? != '' THEN ? ELSE order_hash END,
			error_details = CASE WHEN ? != '' THEN ? ELSE error_details END,
			updated_at = CURRENT_TIMESTAMP
		WHERE swap_id = ?`,
		status, orderHash, orderHash, errorDetails, errorDetails, swapID,
	)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", swapID, err)
	}
	return nil
}

// SetOrderTxHashes records the on-chain hashes for a user-executed order.
func (s *Store) SetOrderTxHashes(ctx context.Context, swapID, approvalTx, swapTx string) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE orders
		SET approval_tx = CASE WHEN ? != '' THEN ? ELSE approval_tx END,
			swap_tx = CASE WHEN ? != '' THEN ? ELSE swap_tx END,
			updated_at = CURRENT_TIMESTAMP
		WHERE swap_id = ?`,
		approvalTx, approvalTx, swapTx, swapTx, swapID,
	)
	if err != nil {
		return fmt.Errorf("updating order %s hashes: %w", swapID, err)
	}
	return nil
}

// GetOrder fetches one order by swap id.
func (s *Store) GetOrder(ctx context.Context, swapID string) (*Order, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE swap_id = ?", swapID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying order %s: %w", swapID, err)
	}
	return &o, nil
}

// ListPendingOrders returns orders that still need status polling.
func (s *Store) ListPendingOrders(ctx context.Context) ([]Order, error) {
	return s.listOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE status IN ('pending', 'processing') ORDER BY id")
}

// ListRecentOrders returns the newest orders, for the dashboard.
func (s *Store) ListRecentOrders(ctx context.Context, limit int) ([]Order, error) {
	return s.listOrders(ctx,
		"SELECT "+orderColumns+" FROM orders ORDER BY id DESC LIMIT ?", limit)
}

// ListOrdersByChat returns a chat's newest orders, for /history.
func (s *Store) ListOrdersByChat(ctx context.Context, chatID int64, limit int) ([]Order, error) {
	return s.listOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE chat_id = ? ORDER BY id DESC LIMIT ?", chatID, limit)
}

func (s *Store) listOrders(ctx context.Context, query string, args ...interface{}) ([]Order, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
