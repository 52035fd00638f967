package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"MedicareCoverageChecker/internal/domain"
	"MedicareCoverageChecker/internal/logging"
	"MedicareCoverageChecker/internal/payment"
	"MedicareCoverageChecker/internal/ports"
)

// OrchestratorDeps wires the ordered sources and the calculator into the lookup workflow.
type OrchestratorDeps struct {
	Sources    []ports.ReimbursementSource
	Calculator *payment.Calculator
	Logger     *slog.Logger
	Timeout    time.Duration
	Concurrent bool
	Year       int
}

// Orchestrator queries sources in priority order and merges what they return.
type Orchestrator struct {
	sources    []ports.ReimbursementSource
	calculator *payment.Calculator
	logger     *slog.Logger
	timeout    time.Duration
	concurrent bool
	year       int
}

var _ ports.Lookuper = (*Orchestrator)(nil)

// NewOrchestrator constructs the lookup component. Sources are used in the given order.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Orchestrator{
		sources:    append([]ports.ReimbursementSource(nil), deps.Sources...),
		calculator: deps.Calculator,
		logger:     logger,
		timeout:    deps.Timeout,
		concurrent: deps.Concurrent,
		year:       deps.Year,
	}
}

// Lookup validates the code, queries sources and classifies the merged result.
// Invalid input returns an error matching domain.ErrInvalidInput before any fetch;
// a cancelled caller gets the context error.
func (o *Orchestrator) Lookup(ctx context.Context, code, locality string) (domain.LookupOutcome, error) {
	q, err := domain.NewCodeQuery(code, locality)
	if err != nil {
		return nil, err
	}
	if len(o.sources) == 0 {
		return nil, fmt.Errorf("lookup %s: no sources configured", q.Code)
	}
	if o.calculator == nil {
		return nil, fmt.Errorf("lookup %s: payment calculator is not configured", q.Code)
	}

	log := o.logger.With("lookup_id", uuid.NewString(), "code", q.Code, "locality", q.Locality)
	started := time.Now()
	log.Debug("lookup started", "sources", len(o.sources), "concurrent", o.concurrent)

	runCtx, cancel := o.withTimeout(ctx)
	defer cancel()

	pending := make([]chan domain.RawSourceResult, len(o.sources))
	start := func(i int) {
		ch := make(chan domain.RawSourceResult, 1)
		pending[i] = ch
		src := o.sources[i]
		go func() {
			ch <- src.Lookup(runCtx, q)
		}()
	}
	if o.concurrent {
		for i := range o.sources {
			start(i)
		}
	}

	acc := newAccumulator()
	for i, src := range o.sources {
		if pending[i] == nil {
			start(i)
		}

		res, ok := await(runCtx, pending[i])
		if ctx.Err() != nil {
			return nil, fmt.Errorf("lookup %s: %w", q.Code, ctx.Err())
		}
		if !ok {
			res = abandoned(src, runCtx.Err())
		}

		log.Debug("source answered",
			"source", res.Source,
			"status", res.Status,
			"kind", res.Kind,
			"fields", len(res.Fields),
			"detail", res.Detail)
		acc.add(res)

		if acc.fields.Complete() {
			if i+1 < len(o.sources) {
				log.Debug("record complete, skipping remaining sources", "skipped", len(o.sources)-i-1)
			}
			break
		}
	}

	outcome := o.classify(q, acc)
	log.Info("lookup finished",
		"outcome", outcomeName(outcome),
		"attempted", acc.attempted,
		"failures", len(acc.failures),
		"duration", time.Since(started))
	return outcome, nil
}

func (o *Orchestrator) classify(q domain.CodeQuery, acc *accumulator) domain.LookupOutcome {
	switch {
	case acc.allUnreachable():
		return domain.SourcesUnavailable{Code: q.Code, Failures: acc.failures}
	case !acc.hasDescription():
		return domain.NotFound{Code: q.Code, Attempted: acc.attempted, Failures: acc.failures}
	default:
		return domain.Success{Record: buildRecord(q, acc, o.calculator, o.year)}
	}
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// await prefers a result that is already available over an expired deadline.
func await(ctx context.Context, ch <-chan domain.RawSourceResult) (domain.RawSourceResult, bool) {
	select {
	case res := <-ch:
		return res, true
	default:
	}
	select {
	case res := <-ch:
		return res, true
	case <-ctx.Done():
		return domain.RawSourceResult{}, false
	}
}

func abandoned(src ports.ReimbursementSource, cause error) domain.RawSourceResult {
	err := &domain.NetworkError{Endpoint: src.Endpoint(), Err: cause}
	return domain.RawSourceResult{
		Source:   src.Name(),
		Endpoint: src.Endpoint(),
		Status:   domain.SourceError,
		Kind:     domain.KindNetwork,
		Detail:   err.Error(),
		Err:      err,
	}
}

func outcomeName(outcome domain.LookupOutcome) string {
	switch outcome.(type) {
	case domain.Success:
		return StatusSuccess
	case domain.NotFound:
		return StatusNotFound
	case domain.SourcesUnavailable:
		return StatusSourcesUnavailable
	default:
		return "unknown"
	}
}
