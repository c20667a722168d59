package contracts

import (
	"context"
	"io"

	"github.com/meysamhadeli/codgrade/grader/models"
)

// IToolchain drives the external compiler, runtime, test runner and mutation tool.
// Failing code is reported through outcomes; errors mean the tool itself could not
// complete and are *models.ToolchainError.
type IToolchain interface {
	Compile(ctx context.Context, request models.CompileRequest) (models.CompileOutcome, error)
	Run(ctx context.Context, request models.RunRequest) (models.RunOutcome, error)
	Test(ctx context.Context, request models.TestRequest) (models.TestOutcome, error)
	Mutate(ctx context.Context, request models.MutationRequest) (models.MutationReport, error)
}

// IFetcher copies a remote resource into dest.
type IFetcher interface {
	Fetch(ctx context.Context, source string, dest io.Writer) error
}
