package contracts

import (
	"context"

	"github.com/meysamhadeli/codgrade/providers/models"
)

// ISelectionProvider picks the methods whose bodies best explain a diagnostic.
type ISelectionProvider interface {
	Select(ctx context.Context, request models.SelectionRequest) ([]models.Selection, error)
	Name() string
}
