package preflight

import (
	"context"

	"voicediary/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Inbox directory", cfg.InboxDir()),
		CheckDirectoryAccess("Output directory", cfg.OutputDir()),
	}

	switch cfg.Workflow.Mode {
	case config.ModeVideo:
		results = append(results, CheckReadableFile("Background image", cfg.Paths.BackgroundImage))
	case config.ModeTranscription:
		results = append(results,
			CheckDirectoryAccess("Notes directory", cfg.Paths.NotesDir),
			CheckTranscriptionService(ctx, cfg.Transcription.BaseURL),
		)
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
