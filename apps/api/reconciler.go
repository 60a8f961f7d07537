package main

import (
	"context"
	"fmt"
	"time"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
)

type reconcileRecorder interface {
	RecordReconcile(outcome string, n int)
}

// runReconciler runs payment.ReconcilePending every interval until ctx is done.
func runReconciler(
	ctx context.Context,
	interval time.Duration,
	svc payment.ServiceInterface,
	recorder reconcileRecorder,
	logger core.Logger,
) {
	if interval <= 0 {
		logger.Warn("payment reconciler disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reconcileOnce(ctx, svc, recorder, logger)
		}
	}
}

func reconcileOnce(ctx context.Context, svc payment.ServiceInterface, recorder reconcileRecorder, logger core.Logger) {
	report, err := svc.ReconcilePending(ctx)
	recorder.RecordReconcile("activated", report.Activated)
	recorder.RecordReconcile("reconciled", report.Reconciled)
	recorder.RecordReconcile("reported", report.Reported)
	recorder.RecordReconcile("failed", report.Failed)
	if err != nil {
		logger.Error(fmt.Sprintf("reconciling payments: %v", err), err)
		return
	}
	if report != (payment.ReconcileReport{}) {
		logger.Info(fmt.Sprintf("reconciler: %+v", report))
	}
}
