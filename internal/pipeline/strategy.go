package pipeline

import (
	"context"

	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/models"
)

// Strategy is a named producer of question units
type Strategy struct {
	Name string
	Run  func(ctx context.Context) ([]models.QuestionUnit, error)
}

// FirstNonEmpty runs strategies in order and returns the first non-empty
// result with the name of the strategy that produced it. A failing strategy
// is logged and the next one is tried. When every strategy comes up empty
// the error is a *models.ZeroQuestionsError.
func FirstNonEmpty(ctx context.Context, log logger.Logger, strategies ...Strategy) ([]models.QuestionUnit, string, error) {
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		units, err := s.Run(ctx)
		if err != nil {
			log.Warn("Strategy %s failed: %v", s.Name, err)
			continue
		}
		if len(units) > 0 {
			log.Info("Strategy %s produced %d questions", s.Name, len(units))
			return units, s.Name, nil
		}
		log.Info("Strategy %s produced no questions", s.Name)
	}
	return nil, "", &models.ZeroQuestionsError{}
}
