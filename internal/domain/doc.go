// Package domain defines generation tasks, their status lifecycle and the
// per-type input schemas, plus the job records kept for proxied predictions.
//
// Nothing here touches storage or the network.
package domain
