package transport

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"museum-api-verifier/internal/types"
)

var placeholderPattern = regexp.MustCompile(`\{[^}]+\}`)

// BuildRequest expands an endpoint's path template and merges its base
// parameters with the case parameters. The API key is a base parameter whose
// value depends on the credential mode.
func BuildRequest(spec types.EndpointSpec, path map[string]string, params types.ParameterSet, cred types.Credential, apiKey string) (Request, error) {
	expanded := spec.PathTemplate
	for name, value := range path {
		expanded = strings.ReplaceAll(expanded, "{"+name+"}", url.PathEscape(value))
	}
	if left := placeholderPattern.FindString(expanded); left != "" {
		return Request{}, fmt.Errorf("unresolved path placeholder %s in %s", left, spec.PathTemplate)
	}

	query := url.Values{}
	for key, value := range params.Merge(spec.BaseParams) {
		query.Set(key, fmt.Sprint(value))
	}

	switch cred {
	case types.CredentialValid, "":
		query.Set("key", apiKey)
	case types.CredentialInvalid:
		query.Set("key", types.InvalidAPIKey)
	case types.CredentialMissing:
		query.Del("key")
	default:
		return Request{}, fmt.Errorf("unknown credential mode %q", cred)
	}

	return Request{
		Path:    expanded,
		Query:   query,
		Timeout: spec.Deadline,
	}, nil
}
