// Package health provides composable probes and the liveness/readiness
// handlers served on both listeners.
//
// Probes combine with [All] and [Named]; [Fixed] and [CheckFunc] build leaf
// probes. [ShutdownGate] fails readiness as soon as shutdown starts so load
// balancers stop routing before in-flight requests drain.
package health
