package pipeline

import (
	"context"
	"fmt"

	"github.com/ogulcanaydogan/caseprompt/internal/ledger"
	"github.com/ogulcanaydogan/caseprompt/internal/observability"
	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

// Replay re-executes the inputs of run id under a new run. The source run is
// only read. A source that was never recorded or has been evicted is an
// error wrapping ledger.ErrRunNotFound.
func (s *Service) Replay(ctx context.Context, id string) (types.ReplayResponse, error) {
	ctx, span := observability.Tracer().Start(ctx, "pipeline.replay")
	defer span.End()

	src, ok := s.ledger.Get(id)
	if !ok {
		err := fmt.Errorf("replay %s: %w", id, ledger.ErrRunNotFound)
		failSpan(span, err)
		return types.ReplayResponse{}, err
	}
	ex, err := s.execute(ctx, ledger.Run{
		PromptKey:  src.PromptKey,
		Version:    src.Version,
		Template:   src.Template,
		Variables:  src.Variables,
		Model:      src.Model,
		Params:     src.Params,
		ContextRef: src.ContextRef,
		ReplayOf:   src.ID,
	})
	if err != nil {
		failSpan(span, err)
	}
	return types.ReplayResponse{RunID: ex.RunID, ReplayOf: src.ID, Result: ex.askResponse()}, err
}
