package appstore

import (
	"context"
	"fmt"
)

// TransactionArchive persists finished transactions. Finishing a
// transaction records it here, which doubles as the acknowledgment:
// a recorded transaction is never reapplied on notification redelivery.
type TransactionArchive interface {
	Record(tx *Transaction) error
	LatestByProduct(productID string) (*Transaction, error)
	LatestOriginalID() (string, error)
}

// Platform bundles the App Store collaborators (server API client,
// notification feed, purchase bridge, catalog mirror, and transaction
// archive) into the single commerce surface the entitlement core
// consumes.
type Platform struct {
	client  *Client
	feed    *Feed
	bridge  *Bridge
	catalog []Product
	archive TransactionArchive
}

// NewPlatform assembles the commerce platform.
func NewPlatform(client *Client, feed *Feed, bridge *Bridge, catalog []Product, archive TransactionArchive) *Platform {
	return &Platform{
		client:  client,
		feed:    feed,
		bridge:  bridge,
		catalog: catalog,
		archive: archive,
	}
}

// Products returns the catalog entries matching the requested
// identifiers. Unknown identifiers are silently absent from the result.
func (p *Platform) Products(ctx context.Context, ids []string) ([]Product, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var products []Product
	for _, product := range p.catalog {
		if _, ok := want[product.ID]; ok {
			products = append(products, product)
		}
	}
	return products, nil
}

// Purchase relays the purchase to the device via the bridge.
func (p *Platform) Purchase(ctx context.Context, product Product) (PurchaseResult, error) {
	return p.bridge.Purchase(ctx, product)
}

// Statuses fetches the subscription-group status snapshot for the
// user's most recent known original transaction. With no purchase
// history there is nothing to query and the snapshot is empty.
func (p *Platform) Statuses(ctx context.Context) ([]SubscriptionStatus, error) {
	originalID, err := p.archive.LatestOriginalID()
	if err != nil {
		return nil, fmt.Errorf("look up original transaction: %w", err)
	}
	if originalID == "" {
		return nil, nil
	}
	return p.client.SubscriptionStatuses(ctx, originalID)
}

// Finish acknowledges a processed transaction by archiving it.
func (p *Platform) Finish(ctx context.Context, tx *Transaction) error {
	if err := p.archive.Record(tx); err != nil {
		return fmt.Errorf("finish transaction %s: %w", tx.TransactionID, err)
	}
	return nil
}

// Updates exposes the live transaction-update feed.
func (p *Platform) Updates(ctx context.Context) <-chan SignedRecord {
	return p.feed.Updates()
}

// Latest returns the most recent finished transaction for the product,
// or nil when it has never been purchased.
func (p *Platform) Latest(ctx context.Context, productID string) (*Transaction, error) {
	return p.archive.LatestByProduct(productID)
}
