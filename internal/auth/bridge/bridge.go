// Package bridge models the message channel a wrapping native shell exposes
// to the sandbox: a request/response channel for federated sign-in and
// fire-and-forget channels for in-app-purchase queries whose results arrive
// later as named events.
package bridge

import (
	"context"
	"encoding/json"
	"time"
)

// Request channel names understood by the host shell.
const (
	ChannelFederatedSignIn     = "federatedSignIn"
	ChannelProductsRequest     = "iap-products-request"
	ChannelPurchaseRequest     = "iap-purchase-request"
	ChannelTransactionsRequest = "iap-transactions-request"
)

// Named events the host shell emits back.
const (
	EventProductsResult      = "iap-products-result"
	EventPurchaseResult      = "iap-purchase-result"
	EventPurchaseTransaction = "iap-purchase-transaction"
	EventTransactionsResult  = "iap-transactions-result"
)

// FederatedToken is the payload a host returns for a federated sign-in
// request. An absent payload is treated as a transport failure by callers.
type FederatedToken struct {
	IDToken   string    `json:"idToken"`
	ExpiresAt time.Time `json:"expiresAt"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Picture   string    `json:"picture,omitempty"`
}

// PurchaseRequest asks the host to start a purchase for a product offer.
type PurchaseRequest struct {
	ProductID string `json:"productID"`
	Quantity  int    `json:"quantity"`
}

// Event is a named message emitted by the host, payload verbatim.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// Bridge is the capability set a host shell provides. The concrete transport
// is an adapter chosen at construction time; the core never probes for an
// ambient host.
type Bridge interface {
	// RequestFederatedToken asks the host for an identity token for the
	// named provider. A host that answers with no payload is reported as an
	// error by the adapter.
	RequestFederatedToken(ctx context.Context, provider string) (FederatedToken, error)

	// RequestProducts asks for the catalog entries behind the given offer
	// names. Fire-and-forget: the answer arrives on Events.
	RequestProducts(ctx context.Context, offerNames []string) error

	// RequestPurchase starts a purchase. Fire-and-forget.
	RequestPurchase(ctx context.Context, req PurchaseRequest) error

	// RequestTransactions asks for the transaction history. Fire-and-forget.
	RequestTransactions(ctx context.Context) error

	// Events is the stream of named result events from the host.
	Events() <-chan Event
}
