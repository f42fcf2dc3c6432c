package paywallkit

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RestoreType marks how a restore was initiated.
type RestoreType string

const (
	// RestoreViaPurchase is a restore triggered implicitly when a purchase
	// reports that the product is already owned.
	RestoreViaPurchase RestoreType = "via_purchase"
	// RestoreViaRestore is an explicit restore started by the user.
	RestoreViaRestore RestoreType = "via_restore"
)

// RestoreOutcomeKind classifies the final outcome of one restore flow.
type RestoreOutcomeKind string

const (
	RestoreOutcomeRestored RestoreOutcomeKind = "restored"
	RestoreOutcomeFailed   RestoreOutcomeKind = "failed"
)

// RestoreOutcome is the result of TransactionCoordinator.Restore.
type RestoreOutcome struct {
	Kind RestoreOutcomeKind
	Err  error
}

// Restore runs one restore flow. A restore succeeds only when the billing
// backend reports success AND the refreshed entitlement snapshot holds an
// active entitlement; a billing success with nothing active is a failure.
func (c *TransactionCoordinator) Restore(ctx context.Context, restoreType RestoreType) RestoreOutcome {
	params := map[string]interface{}{"restore_type": string(restoreType)}
	if info, ok := c.presenter.PresentedInfo(); ok {
		for k, v := range paywallParams(info) {
			params[k] = v
		}
	}
	if restoreType == RestoreViaPurchase {
		if latest, err := c.entitlements.LatestTransaction(ctx); err == nil && latest != nil {
			params["transaction_id"] = latest.ID
		}
	}

	c.track(ctx, newTrackedEvent(EventRestoreStart, params))
	c.setLoadingState(LoadingStateLoadingPurchase)

	result := c.billing.RestorePurchases(ctx)
	if err := c.entitlements.Refresh(ctx); err != nil {
		c.logger.Warn("entitlement refresh after restore failed",
			zap.String("scope", "transactions"),
			zap.Error(err))
	}

	if !result.Restored || c.entitlements.Status() != SubscriptionStatusActive {
		err := result.Err
		if err == nil {
			err = fmt.Errorf("restore reported %v, subscription status %s",
				result.Restored, c.entitlements.Status())
		}
		c.logger.Warn("restore failed",
			zap.String("scope", "transactions"),
			zap.String("restore_type", string(restoreType)),
			zap.Error(err))
		c.track(ctx, newTrackedEvent(EventRestoreFail, withMessage(params, err.Error())))
		c.presentAlert(c.options.RestoreFailed)
		c.setLoadingState(LoadingStateReady)
		return RestoreOutcome{Kind: RestoreOutcomeFailed, Err: err}
	}

	c.track(ctx, newTrackedEvent(EventRestoreComplete, params))
	c.track(ctx, newTrackedEvent(EventTransactionRestore, params))

	if c.options.AutomaticallyDismiss {
		c.presenter.Dismiss(PaywallResult{Kind: PaywallResultRestored}, CloseReasonSystemLogic)
	} else {
		c.setLoadingState(LoadingStateReady)
	}
	return RestoreOutcome{Kind: RestoreOutcomeRestored}
}
