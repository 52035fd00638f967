package parser

import (
	"fmt"
	"net/http"

	"MedicareCoverageChecker/internal/domain"
	"MedicareCoverageChecker/internal/ports"
)

func found(source, endpoint string, fields domain.Fields, detail string) domain.RawSourceResult {
	return domain.RawSourceResult{
		Source:   source,
		Endpoint: endpoint,
		Status:   domain.SourceOK,
		Fields:   fields,
		Detail:   detail,
	}
}

func notFound(source, endpoint, detail string) domain.RawSourceResult {
	return domain.RawSourceResult{
		Source:   source,
		Endpoint: endpoint,
		Status:   domain.SourceNotFound,
		Detail:   detail,
	}
}

// fetchFailure covers every error returned by a Fetcher: the endpoint was not reached.
func fetchFailure(source, endpoint string, err error) domain.RawSourceResult {
	return domain.RawSourceResult{
		Source:   source,
		Endpoint: endpoint,
		Status:   domain.SourceError,
		Kind:     domain.KindNetwork,
		Detail:   err.Error(),
		Err:      err,
	}
}

func parseFailure(source, endpoint string, err error) domain.RawSourceResult {
	return domain.RawSourceResult{
		Source:   source,
		Endpoint: endpoint,
		Status:   domain.SourceError,
		Kind:     domain.KindParse,
		Detail:   err.Error(),
		Err:      err,
	}
}

// fromStatus classifies a non-2xx response: 5xx is reported as unavailable, anything
// else means it answered without the code. Neither counts as unreachable.
func fromStatus(source, endpoint string, resp ports.Response) domain.RawSourceResult {
	if resp.StatusCode >= http.StatusInternalServerError {
		err := fmt.Errorf("%s returned HTTP %d", endpoint, resp.StatusCode)
		return domain.RawSourceResult{
			Source:   source,
			Endpoint: endpoint,
			Status:   domain.SourceError,
			Kind:     domain.KindUnavailable,
			Detail:   err.Error(),
			Err:      err,
		}
	}
	return notFound(source, endpoint, fmt.Sprintf("HTTP %d", resp.StatusCode))
}
