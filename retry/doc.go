// Package retry runs provider calls under a class-aware retry policy.
//
// Provider adapters classify failures as rate limits, timeouts or invalid
// responses (see the core package). Do reacts to each class differently:
// rate limits back off exponentially, timeouts shrink the next attempt's
// deadline, and invalid responses perturb the sampling temperature. The same
// policy is shared by document embedding, query embedding and query expansion.
package retry
