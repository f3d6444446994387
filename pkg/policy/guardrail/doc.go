// Package guardrail evaluates tasks, tool requests and agent output against
// the active policy.
//
// The Engine holds no policy state of its own. Every call reads the current
// PolicyDefinition from the store, so a reload takes effect on the very next
// evaluation. Enabled checks are evaluated in the order the policy declares
// them and the first matching check decides the reason.
//
// Built-in checks:
//
//   - pii: social security numbers, payment card numbers, email addresses,
//     phone numbers
//   - tone: abusive or prohibited language
//   - credentials: cloud access keys, private key blocks, bearer tokens,
//     inline passwords and API keys
//   - prompt_injection: attempts to override instructions or safety rules
//
// Additional checks can be registered with WithRule.
package guardrail
