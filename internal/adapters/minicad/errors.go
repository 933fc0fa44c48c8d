package minicad

import (
	"fmt"

	"github.com/okian/trainingbot/internal/domain/model"
)

func feedErr(kind error, format string, args ...any) error {
	return model.NewStageError(model.StageFetch, "", fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...)))
}
