package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkellersch/authsandbox/internal/auth/bridge"
	"github.com/dkellersch/authsandbox/pkg/idx"
)

// The fake host stands in for the native shell that would wrap the sandbox in
// production: it answers federated sign-in requests with a self-minted
// identity token and serves the storefront sample catalog over the IAP
// channels.

const hostPrincipal = "native-user@sandbox.local"

type catalogOffer struct {
	CurrencyCode                string   `json:"currencyCode"`
	Discounts                   []string `json:"discounts"`
	Price                       string   `json:"price"`
	PriceFormatted              string   `json:"priceFormatted"`
	RecurringSubscriptionPeriod string   `json:"recurringSubscriptionPeriod"`
}

type catalogAttributes struct {
	Description struct {
		Standard string `json:"standard"`
	} `json:"description"`
	ICULocale              string         `json:"icuLocale"`
	IsFamilyShareable      int            `json:"isFamilyShareable"`
	Kind                   string         `json:"kind"`
	Name                   string         `json:"name"`
	OfferName              string         `json:"offerName"`
	Offers                 []catalogOffer `json:"offers"`
	SubscriptionFamilyID   string         `json:"subscriptionFamilyId"`
	SubscriptionFamilyName string         `json:"subscriptionFamilyName"`
	SubscriptionFamilyRank int            `json:"subscriptionFamilyRank"`
}

type catalogProduct struct {
	Attributes catalogAttributes `json:"attributes"`
	Href       string            `json:"href"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
}

func subscriptionProduct(id, offerName, price, formatted string, rank int) catalogProduct {
	attrs := catalogAttributes{
		ICULocale: "en_US@currency=USD",
		Kind:      "Auto-Renewable Subscription",
		OfferName: offerName,
		Offers: []catalogOffer{{
			CurrencyCode:                "USD",
			Discounts:                   []string{},
			Price:                       price,
			PriceFormatted:              formatted,
			RecurringSubscriptionPeriod: "P1M",
		}},
		SubscriptionFamilyID:   "E5EFF888",
		SubscriptionFamilyName: "Primary",
		SubscriptionFamilyRank: rank,
	}
	return catalogProduct{
		Attributes: attrs,
		Href:       "/v1/catalog/usa/in-apps/" + id,
		ID:         id,
		Type:       "in-apps",
	}
}

func sampleCatalog() []catalogProduct {
	return []catalogProduct{
		subscriptionProduct("5BF4AB4E", "essential", "19", "$19.00", 1),
		subscriptionProduct("98BDFA3D", "plus", "24", "$24.00", 2),
		subscriptionProduct("D305D8F1", "advanced", "29", "$29.00", 3),
	}
}

// newHostPipe wires the fake host behind an in-process bridge pipe.
func newHostPipe(logger *slog.Logger) *bridge.Pipe {
	var pipe *bridge.Pipe

	catalog := sampleCatalog()

	pipe = bridge.NewPipe(bridge.Host{
		FederatedToken: func(_ context.Context, provider string) (*bridge.FederatedToken, error) {
			expires := time.Now().Add(time.Hour)

			// The upstream provider would sign this; the fake host only needs
			// claims the token exchange can read.
			token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
				"sub":   hostPrincipal,
				"email": hostPrincipal,
				"name":  "Sandbox Native User",
				"iss":   provider,
				"exp":   expires.Unix(),
			})
			signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
			if err != nil {
				return nil, err
			}

			logger.Debug("host_federated_token_issued", "provider", provider)
			return &bridge.FederatedToken{
				IDToken:   signed,
				ExpiresAt: expires,
				Name:      "Sandbox Native User",
				Email:     hostPrincipal,
			}, nil
		},

		Products: func(_ context.Context, offerNames []string) error {
			matched := catalog
			if len(offerNames) > 0 {
				wanted := make(map[string]bool, len(offerNames))
				for _, name := range offerNames {
					wanted[name] = true
				}
				matched = nil
				for _, p := range catalog {
					if wanted[p.Attributes.OfferName] {
						matched = append(matched, p)
					}
				}
			}

			pipe.Emit(bridge.EventProductsResult, matched)
			return nil
		},

		Purchase: func(_ context.Context, req bridge.PurchaseRequest) error {
			txID := idx.New().String()

			pipe.Emit(bridge.EventPurchaseResult, map[string]any{
				"status":    "purchased",
				"productID": req.ProductID,
				"quantity":  req.Quantity,
			})
			pipe.Emit(bridge.EventPurchaseTransaction, map[string]any{
				"transactionId": txID,
				"productID":     req.ProductID,
				"purchaseDate":  time.Now().UTC().Format(time.RFC3339),
			})
			return nil
		},

		Transactions: func(context.Context) error {
			pipe.Emit(bridge.EventTransactionsResult, []map[string]any{{
				"transactionId": idx.New().String(),
				"productID":     "essential",
				"purchaseDate":  time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339),
				"status":        "active",
			}})
			return nil
		},
	})

	return pipe
}
