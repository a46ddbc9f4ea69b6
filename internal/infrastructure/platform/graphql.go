package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// graphqlSelections maps a REST-deprecated resource to the GraphQL field
// and node selection that yields an equivalent record shape. Callers see
// the same normalized records regardless of protocol.
var graphqlSelections = map[string]struct {
	field     string
	selection string
}{
	"orders": {
		field: "orders",
		selection: `id name createdAt displayFinancialStatus
			totalPriceSet { shopMoney { amount currencyCode } }
			customer { id email }`,
	},
	"usage_records": {
		field:     "usageRecords",
		selection: `id description price { amount currencyCode } createdAt`,
	},
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphqlConnection struct {
	Edges []struct {
		Node json.RawMessage `json:"node"`
	} `json:"edges"`
	PageInfo struct {
		HasNextPage bool   `json:"hasNextPage"`
		EndCursor   string `json:"endCursor"`
	} `json:"pageInfo"`
}

// graphqlPage fetches one page of a connection, presenting the same
// (records, cursor) contract as the REST pager.
func (c *Client) graphqlPage(ctx context.Context, creds Credentials, resource string, filter url.Values, pageSize int, cursor string) ([]json.RawMessage, string, error) {
	sel, ok := graphqlSelections[resource]
	if !ok {
		return nil, "", &Error{Kind: KindPlatformError, Message: fmt.Sprintf("no GraphQL mapping for resource %q", resource)}
	}

	variables := map[string]any{"first": pageSize}
	if cursor != "" {
		variables["after"] = cursor
	}
	if search := filterToSearch(filter); search != "" {
		variables["query"] = search
	}

	doc := fmt.Sprintf(`query($first: Int!, $after: String, $query: String) {
	%s(first: $first, after: $after, query: $query) {
		edges { node { %s } }
		pageInfo { hasNextPage endCursor }
	}
}`, sel.field, sel.selection)

	var envelope struct {
		Data   map[string]graphqlConnection `json:"data"`
		Errors []graphqlError               `json:"errors"`
	}

	err := c.policy.Execute(ctx, func(ctx context.Context) error {
		body, _, attemptErr := c.doOnce(ctx, creds, http.MethodPost, "graphql.json", nil, graphqlRequest{Query: doc, Variables: variables})
		if attemptErr != nil {
			return attemptErr
		}

		envelope.Data = nil
		envelope.Errors = nil
		if err := json.Unmarshal(body, &envelope); err != nil {
			return &Error{Kind: KindPlatformError, Message: "malformed GraphQL response"}
		}
		if len(envelope.Errors) > 0 {
			return classifyGraphQLErrors(envelope.Errors)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	connection, ok := envelope.Data[sel.field]
	if !ok {
		return nil, "", &Error{Kind: KindPlatformError, Message: fmt.Sprintf("GraphQL response missing %q", sel.field)}
	}

	records := make([]json.RawMessage, 0, len(connection.Edges))
	for _, edge := range connection.Edges {
		records = append(records, edge.Node)
	}

	next := ""
	if connection.PageInfo.HasNextPage {
		next = connection.PageInfo.EndCursor
	}
	return records, next, nil
}

// classifyGraphQLErrors maps GraphQL error codes onto the shared taxonomy.
// The platform signals leaky-bucket rejection with a THROTTLED code and a
// 200 status, so this cannot live in the HTTP classifier.
func classifyGraphQLErrors(errs []graphqlError) *Error {
	first := errs[0]
	switch first.Extensions.Code {
	case "THROTTLED":
		return &Error{Kind: KindRateLimited, Message: first.Message}
	case "ACCESS_DENIED":
		return &Error{Kind: KindPermissionDenied, Message: first.Message}
	default:
		message := first.Message
		if len(message) > maxErrorMessageLen {
			message = message[:maxErrorMessageLen]
		}
		return &Error{Kind: KindPlatformError, Message: message}
	}
}

// filterToSearch renders a REST-style filter as the platform's search
// syntax (key:value pairs joined by spaces).
func filterToSearch(filter url.Values) string {
	if len(filter) == 0 {
		return ""
	}
	var parts []string
	for key, values := range filter {
		for _, value := range values {
			parts = append(parts, key+":"+value)
		}
	}
	return strings.Join(parts, " ")
}
