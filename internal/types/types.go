package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Family identifies a resource family of the museum API
type Family string

const (
	FamilyCollectionSearch Family = "collection-search"
	FamilyObjectDetail     Family = "object-detail"
	FamilyImageTiles       Family = "image-tiles"
	FamilyUsersetList      Family = "userset-list"
	FamilyUsersetDetail    Family = "userset-detail"
)

// EndpointSpec describes one resource family: where it lives and which
// query parameters every request to it carries.
type EndpointSpec struct {
	Family       Family
	PathTemplate string
	// Placeholder names the path segment that takes a dynamic identifier.
	Placeholder string
	BaseParams  ParameterSet
	// Deadline overrides the default per-request timeout when non-zero.
	Deadline time.Duration
}

// ParameterSet maps query parameter names to values
type ParameterSet map[string]interface{}

// Merge returns a new set with p applied on top of base.
func (p ParameterSet) Merge(base ParameterSet) ParameterSet {
	merged := make(ParameterSet, len(base)+len(p))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range p {
		merged[k] = v
	}
	return merged
}

// String renders the set with sorted keys so reports are stable.
func (p ParameterSet) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return strings.Join(parts, "&")
}

// Credential selects which API key a case sends
type Credential string

const (
	CredentialValid   Credential = "valid"
	CredentialMissing Credential = "missing"
	CredentialInvalid Credential = "invalid"
)

// InvalidAPIKey is sent for CredentialInvalid cases.
const InvalidAPIKey = "invalid_api_key"

// IdentifierSource names a listing the resolver can take an identifier from.
type IdentifierSource struct {
	Name     string
	Endpoint EndpointSpec
	Path     map[string]string
	// ListPath is the gjson path of the listing array.
	ListPath string
	// Field is the identifier field inside each listing element.
	Field string
}

// DynamicIdentifier is a resource id discovered at run time
type DynamicIdentifier struct {
	Source string
	Value  string
}

// Case is the request side of one (EndpointSpec, ParameterSet) entry of the
// verification matrix. The rules checked against it live with the matrix.
type Case struct {
	Name       string
	Endpoint   EndpointSpec
	Path       map[string]string
	Params     ParameterSet
	Credential Credential
	// Identifier, when set, fills Endpoint.Placeholder from the resolver.
	Identifier *IdentifierSource
	// Peer, when set, issues a second request differing only in these
	// parameters. Pagination rules compare the two responses.
	Peer ParameterSet
}

// Outcome classifies a finished case
type Outcome string

const (
	OutcomePass                Outcome = "pass"
	OutcomeFail                Outcome = "fail"
	OutcomeSkippedKnownIssue   Outcome = "skipped-known-bug"
	OutcomeSkippedPrecondition Outcome = "skipped-precondition"
	OutcomeInfrastructureError Outcome = "infrastructure-error"
)

// IsSkipped reports whether the outcome counts as skipped.
func (o Outcome) IsSkipped() bool {
	return o == OutcomeSkippedKnownIssue || o == OutcomeSkippedPrecondition
}

// RuleFinding records one rule that did not hold
type RuleFinding struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// VerificationResult is the outcome of one case
type VerificationResult struct {
	Case       string        `json:"case"`
	Family     Family        `json:"family"`
	Path       string        `json:"path"`
	Params     string        `json:"params"`
	Credential Credential    `json:"credential"`
	Outcome    Outcome       `json:"outcome"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration"`
	Findings   []RuleFinding `json:"findings,omitempty"`
	Error      string        `json:"error,omitempty"`
	Notes      []string      `json:"notes,omitempty"`
	Body       string        `json:"body,omitempty"`
}
