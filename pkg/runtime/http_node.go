package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/template"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/utils"
)

// runHTTPNode resolves the request templates, applies connector
// authentication and issues the call. A response status of 400 or above
// counts as a node failure; the response is still recorded so downstream
// handling can inspect it.
func (e *Engine) runHTTPNode(ctx context.Context, ec *ExecutionContext, accountID, nodeID string, config *models.HTTPConfig) (interface{}, error) {
	tctx := ec.TemplateContext()

	endpoint, warnings := template.ResolveString(config.Endpoint, tctx)
	logWarnings(ec, nodeID, warnings)

	headers, warnings := template.ResolveInMap(config.Headers, tctx)
	logWarnings(ec, nodeID, warnings)

	queryParams, warnings := template.ResolveInMap(config.QueryParams, tctx)
	logWarnings(ec, nodeID, warnings)

	var body interface{}
	if config.Body != nil {
		body, warnings = template.ResolveValue(config.Body, tctx)
		logWarnings(ec, nodeID, warnings)
	}

	if config.ConnectorID != "" {
		var err error
		endpoint, headers, queryParams, err = e.applyConnector(ctx, accountID, config.ConnectorID, endpoint, headers, queryParams)
		if err != nil {
			return nil, err
		}
	}

	request := &utils.HTTPRequest{
		URL:         endpoint,
		Method:      config.Method,
		Headers:     headers,
		QueryParams: queryParams,
		Body:        body,
	}
	if config.TimeoutSeconds > 0 {
		request.Timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}

	response, err := e.httpClient.Do(ctx, request)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"status":        float64(response.StatusCode),
		"status_text":   response.StatusText,
		"headers":       flattenHeaders(response.Headers),
		"body":          response.Body,
		"response_time": float64(response.ResponseTime),
	}

	if e.results != nil {
		// Best effort: the cache only feeds editor suggestions.
		if err := e.results.SaveLastResult(nodeID, result); err != nil {
			e.logger.Warn("failed to cache node result", "node_id", nodeID, "error", err)
		}
	}

	if response.StatusCode >= 400 {
		return result, fmt.Errorf("request returned status %d %s", response.StatusCode, response.StatusText)
	}
	return result, nil
}

// applyConnector merges connector base URL, auth headers and query-located
// API keys into the request
func (e *Engine) applyConnector(ctx context.Context, accountID, connectorID, endpoint string, headers, queryParams map[string]string) (string, map[string]string, map[string]string, error) {
	if e.connectors == nil {
		return "", nil, nil, fmt.Errorf("node references connector %q but no connector store is configured", connectorID)
	}
	connector, err := e.connectors.GetConnector(accountID, connectorID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to load connector %q: %w", connectorID, err)
	}

	authHeaders, err := e.authenticator.Authenticate(ctx, accountID, connector)
	if err != nil {
		return "", nil, nil, err
	}

	// Node-level headers win over connector headers.
	merged := make(map[string]string, len(authHeaders)+len(headers))
	for key, value := range authHeaders {
		merged[key] = value
	}
	for key, value := range headers {
		merged[key] = value
	}

	if connector.AuthType == models.AuthTypeAPIKey && connector.Auth.KeyLocation == models.KeyLocationQuery {
		keyName := connector.Auth.KeyName
		if keyName == "" {
			keyName = "api_key"
		}
		if queryParams == nil {
			queryParams = make(map[string]string, 1)
		}
		queryParams[keyName] = connector.Auth.APIKey
	}

	if connector.BaseURL != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = strings.TrimRight(connector.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	}

	return endpoint, merged, queryParams, nil
}

func flattenHeaders(headers map[string][]string) map[string]interface{} {
	flat := make(map[string]interface{}, len(headers))
	for key, values := range headers {
		if len(values) > 0 {
			flat[key] = values[0]
		}
	}
	return flat
}
