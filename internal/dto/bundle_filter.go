// BundleFilter describes user-provided filters to narrow the recorded bundle list.
package dto

import "time"

type BundleFilter struct {
	Session string
	// Port, when set, keeps only bundles in which that port was present.
	Port   *int
	After  time.Time
	Before time.Time
	Limit  int
	Offset int
}
