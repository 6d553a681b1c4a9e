package domain

import "github.com/lib/pq"

// pqStringArray adapts a Go string slice to lib/pq's driver.Valuer for the
// ARRAY-typed columns spec.md §6 calls for (devices.tags, sites.tags, ...).
func pqStringArray(ss []string) pq.StringArray {
	return pq.StringArray(ss)
}
