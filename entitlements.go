package paywallkit

import (
	"context"
	"sync"
	"time"
)

// SubscriptionState is the latest renewable-subscription state for an
// entitlement, derived with precedence
// revoked > grace_period > billing_retry > expired > subscribed.
type SubscriptionState string

const (
	SubscriptionStateRevoked      SubscriptionState = "revoked"
	SubscriptionStateGracePeriod  SubscriptionState = "grace_period"
	SubscriptionStateBillingRetry SubscriptionState = "billing_retry"
	SubscriptionStateExpired      SubscriptionState = "expired"
	SubscriptionStateSubscribed   SubscriptionState = "subscribed"
)

// EntitlementTransaction is one raw store transaction attributed to an
// entitlement, as reported by the transaction store.
type EntitlementTransaction struct {
	TransactionID        string
	ProductID            string
	ProductType          ProductType
	PurchaseDate         time.Time
	OriginalPurchaseDate time.Time
	ExpirationDate       *time.Time
	RenewedAt            *time.Time
	WillRenew            bool
	IsRevoked            bool
	IsInGracePeriod      bool
	IsInBillingRetry     bool
	IsActive             bool
}

func (t EntitlementTransaction) isRenewable() bool {
	return t.ProductType == ProductTypeAutoRenewable || t.ProductType == ProductTypeNonRenewable
}

// Entitlement is a server-declared access grant enriched client-side with
// activity, expiry, and renewal facts computed from transaction history.
type Entitlement struct {
	ID              string
	Type            string
	IsActive        bool
	ProductIDs      []string
	LatestProductID string
	StartsAt        *time.Time
	RenewedAt       *time.Time
	ExpiresAt       *time.Time
	IsLifetime      bool
	WillRenew       bool
	State           SubscriptionState
}

// EnrichEntitlements builds enriched entitlements from transactions grouped
// by entitlement ID. Raw entitlements with no transactions come back
// inactive; entitlements referenced by transactions but absent from the raw
// config are dropped.
func EnrichEntitlements(
	transactionsByEntitlement map[string][]EntitlementTransaction,
	rawEntitlements []Entitlement,
	productIDsByEntitlement map[string][]string,
) []Entitlement {
	if len(rawEntitlements) == 0 {
		return nil
	}

	rawByID := make(map[string]Entitlement, len(rawEntitlements))
	for _, raw := range rawEntitlements {
		rawByID[raw.ID] = raw
	}

	enrichedByID := make(map[string]Entitlement)
	for entitlementID, transactions := range transactionsByEntitlement {
		raw, ok := rawByID[entitlementID]
		if !ok {
			continue
		}
		enrichedByID[entitlementID] = enrichEntitlement(raw, transactions, productIDsByEntitlement[entitlementID])
	}

	result := make([]Entitlement, 0, len(rawEntitlements))
	for _, raw := range rawEntitlements {
		if enriched, ok := enrichedByID[raw.ID]; ok {
			result = append(result, enriched)
			continue
		}
		// No transactions means not active; an active purchase would
		// have produced one.
		raw.IsActive = false
		raw.ProductIDs = productIDsByEntitlement[raw.ID]
		result = append(result, raw)
	}
	return result
}

func enrichEntitlement(raw Entitlement, transactions []EntitlementTransaction, allProductIDs []string) Entitlement {
	var (
		isActive            bool
		isLifetime          bool
		latestProductID     string
		renewedAt           *time.Time
		expiresAt           *time.Time
		startsAt            *time.Time
		mostRecentRenewable *EntitlementTransaction
	)

	productIDs := allProductIDs
	if len(productIDs) == 0 {
		seen := map[string]bool{}
		for _, txn := range transactions {
			if !seen[txn.ProductID] {
				seen[txn.ProductID] = true
				productIDs = append(productIDs, txn.ProductID)
			}
		}
	}

	for i := range transactions {
		txn := transactions[i]
		if startsAt == nil || txn.OriginalPurchaseDate.Before(*startsAt) {
			original := txn.OriginalPurchaseDate
			startsAt = &original
		}

		// A non-revoked lifetime purchase makes the entitlement
		// permanently active; renewable facts no longer apply.
		if txn.ProductType == ProductTypeNonConsumable && !txn.IsRevoked && !isLifetime {
			isLifetime = true
			latestProductID = txn.ProductID
			isActive = true
		}

		// Revoked renewables still participate in state precedence but
		// contribute no activity, renewal, or expiry facts.
		if txn.isRenewable() {
			if mostRecentRenewable == nil || mostRecentRenewable.PurchaseDate.Before(txn.PurchaseDate) {
				mostRecentRenewable = &transactions[i]
			}
		}

		if txn.IsRevoked || !txn.isRenewable() {
			continue
		}

		if txn.IsActive {
			isActive = true
		}

		txnRenewedAt := txn.RenewedAt
		if txnRenewedAt == nil && !txn.PurchaseDate.Equal(txn.OriginalPurchaseDate) {
			// Purchase date differing from the original purchase
			// date marks a renewal.
			purchase := txn.PurchaseDate
			txnRenewedAt = &purchase
		}
		if txnRenewedAt != nil && (renewedAt == nil || renewedAt.Before(*txnRenewedAt)) {
			renewedAt = txnRenewedAt
		}

		if txn.ExpirationDate != nil && (expiresAt == nil || txn.ExpirationDate.After(*expiresAt)) {
			expiresAt = txn.ExpirationDate
		}
	}

	if !isLifetime && mostRecentRenewable != nil {
		latestProductID = mostRecentRenewable.ProductID
		// Active when the most recent renewable has no expiration or
		// one in the future.
		if !isActive {
			isActive = mostRecentRenewable.ExpirationDate == nil ||
				mostRecentRenewable.ExpirationDate.After(time.Now())
			isActive = isActive && !mostRecentRenewable.IsRevoked
		}
	}

	willRenew := false
	var state SubscriptionState
	if !isLifetime && mostRecentRenewable != nil {
		willRenew = mostRecentRenewable.WillRenew
		switch {
		case mostRecentRenewable.IsRevoked:
			state = SubscriptionStateRevoked
		case mostRecentRenewable.IsInGracePeriod:
			state = SubscriptionStateGracePeriod
		case mostRecentRenewable.IsInBillingRetry:
			state = SubscriptionStateBillingRetry
		case !isActive:
			state = SubscriptionStateExpired
		default:
			state = SubscriptionStateSubscribed
		}
	}

	if isLifetime {
		expiresAt = nil
	}

	return Entitlement{
		ID:              raw.ID,
		Type:            raw.Type,
		IsActive:        isActive,
		ProductIDs:      productIDs,
		LatestProductID: latestProductID,
		StartsAt:        startsAt,
		RenewedAt:       renewedAt,
		ExpiresAt:       expiresAt,
		IsLifetime:      isLifetime,
		WillRenew:       willRenew,
		State:           state,
	}
}

// SubscriptionStatus is the coarse entitlement snapshot consulted by the
// restore reconciliation rule.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusUnknown  SubscriptionStatus = "unknown"
)

// EntitlementStore holds the current enriched entitlement snapshot. It is
// refreshed by the transaction coordinator after every purchase and restore.
type EntitlementStore struct {
	transactions TransactionStore

	mu  sync.RWMutex
	raw []Entitlement
	// productIDsByEntitlement maps entitlement IDs to every product that
	// can unlock them, from server config.
	productIDsByEntitlement map[string][]string
	snapshot                []Entitlement
	status                  SubscriptionStatus
}

// NewEntitlementStore creates a store over the given transaction history.
func NewEntitlementStore(transactions TransactionStore) *EntitlementStore {
	return &EntitlementStore{
		transactions: transactions,
		status:       SubscriptionStatusUnknown,
	}
}

// Configure installs the server-declared entitlements and their product
// associations.
func (s *EntitlementStore) Configure(raw []Entitlement, productIDsByEntitlement map[string][]string) {
	s.mu.Lock()
	s.raw = raw
	s.productIDsByEntitlement = productIDsByEntitlement
	s.mu.Unlock()
}

// Refresh recomputes the enriched snapshot from transaction history.
func (s *EntitlementStore) Refresh(ctx context.Context) error {
	byEntitlement, err := s.transactions.TransactionsByEntitlement(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = EnrichEntitlements(byEntitlement, s.raw, s.productIDsByEntitlement)
	s.status = SubscriptionStatusInactive
	for _, entitlement := range s.snapshot {
		if entitlement.IsActive {
			s.status = SubscriptionStatusActive
			break
		}
	}
	return nil
}

// LatestTransaction returns the most recent store transaction, or nil.
func (s *EntitlementStore) LatestTransaction(ctx context.Context) (*StoreTransaction, error) {
	return s.transactions.LatestTransaction(ctx)
}

// Snapshot returns the current enriched entitlements.
func (s *EntitlementStore) Snapshot() []Entitlement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Status returns the coarse subscription status.
func (s *EntitlementStore) Status() SubscriptionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
