// Package reconcile implements the failsafe passes that advance workflows
// whose provider callbacks never arrived.
//
// Each stage lists the records awaiting it across every partition. Records
// without a correlation id past the stuck threshold are failed; records with
// one are polled and fed through the same workflow transitions the webhook
// handlers use. Every pass reports aggregate counters to the alert log.
package reconcile
