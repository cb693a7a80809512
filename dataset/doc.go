// Package dataset provides the tabular data model for analysis execution.
//
// The dataset package defines the column-oriented Dataset type that candidate
// programs operate on, along with deep cloning (used by the execution engine
// to guarantee the caller's data is never mutated), content fingerprinting,
// and column profiling used to describe datasets to LLM prompt builders.
//
// Usage:
//
//	ds, err := dataset.FromJSON(payload)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	profile := dataset.ProfileOf(ds)
//	fmt.Println(profile.TextSummary())
package dataset
