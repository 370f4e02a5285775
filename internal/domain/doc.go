// Package domain holds the value types shared by the wizard, the detector and
// the dispatcher: subscriptions, delivery policies, track snapshots and the
// error kinds used to classify failures.
package domain
