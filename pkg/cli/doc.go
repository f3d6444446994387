/*
Package cli provides command-line helpers for the overwatch command.

Output Formatting:

Results render as text, JSON or CSV. Types implementing Tabular render as
aligned tables in text mode and as rows in CSV mode:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return err
	}
	if err := cli.NewFormatter(format).FormatTo(os.Stdout, result); err != nil {
		return err
	}

Progress Reporting:

The serve command reports per-status task counts on stderr:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(0)
	progress.Record(string(resp.Status))
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

SIGHUP is delivered on ReloadSignal and triggers a policy reload.

Exit Codes:

ExitCode maps command errors to process exit codes: rejected tasks exit 2,
tool failures 3, configuration and policy errors 4 and blocked tasks 5. A
task whose audit record could not be written exits 6, whatever else
happened to it.
*/
package cli
