// Package logging builds the process *slog.Logger with PII redaction.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    "json",
//	    RedactPII: true,
//	})
//
//	ctx = logging.WithTaskID(ctx, task.ID)
//	logger.InfoContext(ctx, "step finished", "tool", "data_lookup")
//	// {"level":"INFO","msg":"step finished","task_id":"...","tool":"data_lookup"}
//
// # PII Redaction
//
// When RedactPII is set, every attribute value passes through a Redactor
// before it reaches the output handler:
//
//   - Sensitive keys (password, token, api_key, ssn...) are masked outright
//   - SSNs, card numbers, emails and phone numbers are replaced
//   - API keys, AWS access keys, bearer tokens and private key headers are replaced
//
// Guardrails see raw task text, so tool inputs logged during screening can
// carry the very values a policy blocks on. Redaction keeps them out of logs.
package logging
