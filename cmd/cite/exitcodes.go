package main

import (
	"errors"

	"github.com/matsen/citegraph/internal/analysis"
	"github.com/matsen/citegraph/internal/config"
	"github.com/matsen/citegraph/internal/crossref"
	"github.com/matsen/citegraph/internal/job"
	"github.com/matsen/citegraph/internal/semantic"
	"github.com/matsen/citegraph/internal/storage"
)

// Exit codes
const (
	ExitSuccess       = 0 // Success
	ExitError         = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError   = 2 // Configuration error (bad config file, missing API key)
	ExitDataError     = 3 // Data error (malformed input, validation failure)
	ExitNotFound      = 4 // Collection, run or DOI not found
	ExitUnavailable   = 5 // External service unavailable (Crossref, Redis, embeddings)
	ExitCheckFailures = 6 // Integrity check found issues
)

// exitCodeFor maps known errors to exit codes.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, storage.ErrCollectionNotFound),
		errors.Is(err, job.ErrUnknownRun),
		errors.Is(err, crossref.ErrNotFound),
		errors.Is(err, semantic.ErrPaperNotIndexed):
		return ExitNotFound
	case errors.Is(err, config.ErrInvalid):
		return ExitConfigError
	case errors.Is(err, crossref.ErrRateLimited),
		errors.Is(err, crossref.ErrNetworkError):
		return ExitUnavailable
	case errors.Is(err, job.ErrEmptyCollection),
		errors.Is(err, analysis.ErrEmptyCollection),
		errors.Is(err, semantic.ErrEmptyIndex),
		errors.Is(err, storage.ErrCollectionExists):
		return ExitDataError
	}
	return ExitError
}
