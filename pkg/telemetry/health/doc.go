// Package health runs readiness checks for the components a task runner
// depends on.
//
// A Checker holds named CheckFuncs and runs them concurrently, each under
// its own timeout. The report is ready when every check passed and
// degraded otherwise.
//
// The package ships checks for the policy source, the audit log hash chain
// and writable output directories:
//
//	checker := health.New(2 * time.Second)
//	checker.Register("policy", health.PolicySource(policies.Source(), known))
//	checker.Register("audit_log", health.AuditLog(cfg.Audit.Path))
//
//	report := checker.Run(ctx)
//	if !report.Ready() {
//	    for _, name := range report.Names() {
//	        fmt.Println(name, report.Checks[name].Status, report.Checks[name].Message)
//	    }
//	}
package health
