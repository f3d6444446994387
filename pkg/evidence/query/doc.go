// Package query validates audit queries and fills in defaults.
//
// # Query Validation
//
// The validator ensures query parameters are valid before execution:
//
//   - Limit >= 0 and <= MaxLimit
//   - Offset >= 0
//   - Sort order is valid (asc, desc)
//   - Time range is valid (start <= end)
//   - Status is a known task or audit status
//
// # Basic Usage
//
//	q := &evidence.Query{Status: "blocked", Limit: 20}
//	query.ApplyDefaults(q)
//	if err := query.Validate(q); err != nil {
//	    return err
//	}
//	records, err := reader.Query(ctx, q)
package query
