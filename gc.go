package main

import (
	log "github.com/sirupsen/logrus"

	"vnetns/reconcile"
)

// logSummary tells what a reconciliation cleaned up.
func logSummary(summary *reconcile.Summary) {
	for _, lock := range summary.RemovedLocks {
		log.WithFields(log.Fields{"namespace": lock.Namespace, "pid": lock.PID}).Info("removed dead lock")
	}
	for _, ns := range summary.DeletedNamespaces {
		log.WithField("namespace", ns).Info("removed dead namespace")
	}
	if len(summary.RemovedLocks) == 0 && len(summary.DeletedNamespaces) == 0 {
		log.Debug("nothing to clean up")
	}
}
