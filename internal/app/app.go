package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"MedicareCoverageChecker/internal/config"
	"MedicareCoverageChecker/internal/domain"
	"MedicareCoverageChecker/internal/infrastructure/httpclient"
	"MedicareCoverageChecker/internal/infrastructure/parser"
	"MedicareCoverageChecker/internal/logging"
	"MedicareCoverageChecker/internal/payment"
	"MedicareCoverageChecker/internal/source"
	"MedicareCoverageChecker/internal/toolserver"
	"MedicareCoverageChecker/internal/usecase"
)

// Application wires configs to use cases and the tool surface.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	orchestrator *usecase.Orchestrator
	prober       *usecase.Prober
	calculator   *payment.Calculator
}

var _ toolserver.Services = (*Application)(nil)

// New builds a runnable application instance from an immutable configuration.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	fetcher := httpclient.New(nil, httpclient.Options{
		Timeout:      cfg.HTTP.Timeout(),
		UserAgent:    cfg.HTTP.UserAgent,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})

	endpoints := cfg.Endpoints
	registry := source.NewRegistry()
	registry.Register(parser.NewDatastoreSQLSource(fetcher, endpoints.DatastoreSQLURL(), endpoints.SQLTable, endpoints.SQLCodeColumn,
		baseLogger.With("component", "source."+domain.SourceNameDatastoreSQL)))
	registry.Register(parser.NewMetastoreSource(fetcher, MetastoreEndpoints(endpoints),
		baseLogger.With("component", "source."+domain.SourceNameMetastore)))
	registry.Register(parser.NewPFSSearchSource(fetcher, endpoints.PFSSearchURL(),
		baseLogger.With("component", "source."+domain.SourceNamePFSSearch)))

	sources, err := registry.Ordered(cfg.Lookup.Sources)
	if err != nil {
		return nil, fmt.Errorf("resolve lookup sources: %w", err)
	}

	calculator := payment.NewCalculator(
		cfg.Payment.ConversionFactorOverride,
		cfg.Payment.DefaultConversionFactor,
		cfg.Payment.CoinsuranceRate,
	)

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Sources:    sources,
		Calculator: calculator,
		Logger:     baseLogger.With("component", "lookup"),
		Timeout:    cfg.Lookup.Timeout(),
		Concurrent: cfg.Lookup.IsConcurrent(),
		Year:       cfg.Payment.Year,
	})

	prober := usecase.NewProber(fetcher, ProbeTargets(endpoints), baseLogger.With("component", "probe"))

	return &Application{
		cfg:          cfg,
		logger:       baseLogger,
		orchestrator: orchestrator,
		prober:       prober,
		calculator:   calculator,
	}, nil
}

// MetastoreEndpoints maps configured URLs onto the metastore source.
func MetastoreEndpoints(endpoints config.EndpointConfig) parser.MetastoreEndpoints {
	return parser.MetastoreEndpoints{
		CatalogURL:  endpoints.MetastoreItemsURL(),
		DatasetURL:  endpoints.DatasetDataURL,
		TitleTerms:  endpoints.DatasetTitleTerms,
		MaxDatasets: endpoints.MaxDatasets,
	}
}

// ProbeTargets lists the endpoint roots checked by the connection test.
func ProbeTargets(endpoints config.EndpointConfig) []usecase.ProbeTarget {
	return []usecase.ProbeTarget{
		{Name: "cms-site", URL: strings.TrimSuffix(endpoints.CMSBaseURL, "/") + "/"},
		{Name: domain.SourceNamePFSSearch, URL: endpoints.PFSSearchURL()},
		{Name: domain.SourceNameMetastore, URL: endpoints.MetastoreItemsURL()},
		{Name: domain.SourceNameDatastoreSQL, URL: endpoints.DatastoreSQLURL()},
	}
}

// LookupReimbursement answers lookup_reimbursement.
func (a *Application) LookupReimbursement(ctx context.Context, code, locality string) (usecase.LookupResponse, error) {
	return usecase.Respond(ctx, a.orchestrator, code, locality)
}

// TestConnection answers test_cms_api_connection.
func (a *Application) TestConnection(ctx context.Context) usecase.ConnectionReport {
	return a.prober.Probe(ctx)
}

// ExplainPayments answers explain_medicare_payments.
func (a *Application) ExplainPayments() usecase.PaymentExplanation {
	return usecase.Explain(a.calculator, a.cfg.Payment.Year)
}

// Run serves the tools over stdio until ctx is cancelled or the client disconnects.
func (a *Application) Run(ctx context.Context, version string) error {
	a.logger.Info("serving tools over stdio",
		"version", version,
		"sources", a.cfg.Lookup.Sources,
		"concurrent", a.cfg.Lookup.IsConcurrent())

	server := toolserver.New(a, version, a.logger.With("component", "toolserver"))
	if err := toolserver.Serve(ctx, server); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve tools: %w", err)
	}
	return nil
}
