// Overwatch runs agent tasks step by step under an enforced safety policy
// and records an auditable trace of every decision.
//
// Usage:
//
//	# Run the demo task with the built-in policy
//	overwatch run --demo
//
//	# Run one task
//	overwatch run --description "Lookup user-1 account status" --role analyst
//
//	# Process JSONL tasks from stdin with policy hot reload
//	overwatch serve --config overwatch.yaml < tasks.jsonl
//
//	# Validate a policy file
//	overwatch policy validate policy.yaml
//
//	# Verify the audit log hash chain
//	overwatch audit verify --file audit.jsonl
package main

func main() {
	Execute()
}
