package content

import (
	"fmt"

	"github.com/okian/trainingbot/internal/domain/model"
)

func unavailable(path string, err error) error {
	return model.NewStageError(model.StageLoad, path, fmt.Errorf("%w: %w", model.ErrSourceUnavailable, err))
}

func malformed(record, format string, args ...any) error {
	return model.NewStageError(model.StageLoad, record, fmt.Errorf("%w: %s", model.ErrFormat, fmt.Sprintf(format, args...)))
}
