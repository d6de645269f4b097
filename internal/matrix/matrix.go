// Package matrix is the single table of contract cases: every endpoint
// family, the parameter sets it is exercised with and the rules each
// response must satisfy.
package matrix

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"museum-api-verifier/internal/contract"
	"museum-api-verifier/internal/parser"
	"museum-api-verifier/internal/types"
)

// Fixtures used by the literal cases
const (
	NightWatch      = "SK-C-5"
	NightWatchTitle = "De Nachtwacht"
	Rembrandt       = "Rembrandt van Rijn"
	UnknownObject   = "aaaAAAaaa123"
	UnknownTiles    = "thisisinvalid"
	OtherObject     = "AK-MAK-187"

	// PageCeiling bounds page * pageSize on the userset listing.
	PageCeiling = 10000
	// PageLimitMessage is the documented rejection message.
	PageLimitMessage = "page * pageSize cannot exceed 10,000"
)

// DetailDeadline is the documented response time bound for detail and tiles
const DetailDeadline = 2 * time.Second

var (
	CollectionSearch = types.EndpointSpec{
		Family:       types.FamilyCollectionSearch,
		PathTemplate: "{culture}/collection",
		BaseParams:   types.ParameterSet{"format": "json"},
	}
	ObjectDetail = types.EndpointSpec{
		Family:       types.FamilyObjectDetail,
		PathTemplate: "{culture}/collection/{objectNumber}",
		Placeholder:  "objectNumber",
		BaseParams:   types.ParameterSet{"format": "json"},
		Deadline:     DetailDeadline,
	}
	ImageTiles = types.EndpointSpec{
		Family:       types.FamilyImageTiles,
		PathTemplate: "{culture}/collection/{objectNumber}/tiles",
		Placeholder:  "objectNumber",
		BaseParams:   types.ParameterSet{},
		Deadline:     DetailDeadline,
	}
	UsersetList = types.EndpointSpec{
		Family:       types.FamilyUsersetList,
		PathTemplate: "{culture}/usersets",
		BaseParams:   types.ParameterSet{"format": "json"},
	}
	UsersetDetail = types.EndpointSpec{
		Family:       types.FamilyUsersetDetail,
		PathTemplate: "{culture}/usersets/{usersetId}",
		Placeholder:  "usersetId",
		BaseParams:   types.ParameterSet{"format": "json"},
	}
)

// Endpoints lists every family in matrix order
func Endpoints() []types.EndpointSpec {
	return []types.EndpointSpec{CollectionSearch, ObjectDetail, ImageTiles, UsersetList, UsersetDetail}
}

var (
	// UsersetSource yields the validUsersetId for userset detail cases.
	UsersetSource = &types.IdentifierSource{
		Name:     "userset",
		Endpoint: UsersetList,
		Path:     map[string]string{"culture": "nl"},
		ListPath: "userSets",
		Field:    "id",
	}
	// ObjectSource yields an object number for the round-trip case.
	ObjectSource = &types.IdentifierSource{
		Name:     "object",
		Endpoint: CollectionSearch,
		Path:     map[string]string{"culture": "en"},
		ListPath: "artObjects",
		Field:    "objectNumber",
	}
)

// Case pairs a request with the rules its response must satisfy
type Case struct {
	types.Case
	Rules []contract.Rule
}

func culture(c string) map[string]string {
	return map[string]string{"culture": c}
}

func object(c, number string) map[string]string {
	return map[string]string{"culture": c, "objectNumber": number}
}

// Build assembles the matrix. Shape rules take their schemas from the
// contract document.
func Build(doc *parser.Contract) []Case {
	jsonBody := contract.ContentType("application/json")
	ok := contract.StatusIn(http.StatusOK)
	unauthorized := contract.StatusIn(http.StatusUnauthorized)
	schema := func(spec types.EndpointSpec) contract.Rule {
		return contract.MatchesSchema(string(spec.Family), doc.ResponseSchema(spec.PathTemplate, http.StatusOK))
	}

	cases := []Case{
		// collection search
		{
			Case:  types.Case{Name: "collection/default", Endpoint: CollectionSearch, Path: culture("en")},
			Rules: []contract.Rule{ok, jsonBody, contract.FieldAtLeast("count", 1), schema(CollectionSearch)},
		},
		{
			Case: types.Case{Name: "collection/culture-nl", Endpoint: CollectionSearch, Path: culture("nl")},
			Rules: []contract.Rule{ok, contract.NonEmpty("artObjects"),
				contract.EveryElementContains("artObjects", "links.web", "/nl/")},
		},
		{
			Case: types.Case{Name: "collection/culture-en", Endpoint: CollectionSearch, Path: culture("en")},
			Rules: []contract.Rule{ok, contract.NonEmpty("artObjects"),
				contract.EveryElementContains("artObjects", "links.web", "/en/")},
		},
		{
			Case: types.Case{Name: "collection/page-size-8", Endpoint: CollectionSearch, Path: culture("en"),
				Params: types.ParameterSet{"ps": 8}},
			Rules: []contract.Rule{ok, contract.LengthExactly("artObjects", 8, "count")},
		},
		{
			Case: types.Case{Name: "collection/page-2", Endpoint: CollectionSearch, Path: culture("en"),
				Params: types.ParameterSet{"ps": 5, "p": 2},
				Peer:   types.ParameterSet{"p": 1}},
			Rules: []contract.Rule{ok, contract.PageLength("artObjects", 5, "count", "p"),
				contract.LeadingElementsDiffer("artObjects", "objectNumber", "count")},
		},
		{
			Case: types.Case{Name: "collection/sort-relevance", Endpoint: CollectionSearch, Path: culture("en"),
				Params: types.ParameterSet{"s": "relevance"}},
			Rules: []contract.Rule{ok, contract.SortedNonEmpty("artObjects", "relevance")},
		},
		{
			Case: types.Case{Name: "collection/sort-objecttype", Endpoint: CollectionSearch, Path: culture("en"),
				Params: types.ParameterSet{"s": "objecttype"}},
			Rules: []contract.Rule{ok, contract.SortedNonEmpty("artObjects", "objecttype")},
		},
		{
			Case: types.Case{Name: "collection/involved-maker", Endpoint: CollectionSearch, Path: culture("en"),
				Params: types.ParameterSet{"involvedMaker": Rembrandt}},
			Rules: []contract.Rule{ok, contract.NonEmpty("artObjects"),
				contract.EveryElementEquals("artObjects", "principalOrFirstMaker", Rembrandt)},
		},
		{
			Case: types.Case{Name: "collection/image-only", Endpoint: CollectionSearch, Path: culture("en"),
				Params: types.ParameterSet{"imgonly": true}},
			Rules: []contract.Rule{ok, jsonBody, contract.NonEmpty("artObjects"),
				contract.EveryElementPresent("artObjects", "objectNumber"),
				contract.EveryElementPresent("artObjects", "title"),
				contract.EveryElementPresent("artObjects", "principalOrFirstMaker"),
				contract.EveryElementPresent("artObjects", "webImage")},
		},
		{
			Case:  types.Case{Name: "collection/web-image-key", Endpoint: CollectionSearch, Path: culture("nl")},
			Rules: []contract.Rule{ok, contract.EveryElementHasKey("artObjects", "webImage")},
		},
		{
			Case: types.Case{Name: "collection/negative-page-size", Endpoint: CollectionSearch, Path: culture("en"),
				Params: types.ParameterSet{"ps": -5}},
			Rules: []contract.Rule{
				contract.StatusClass(400, 499).AsKnownIssue("negative ps is accepted upstream; reported, awaiting fix"),
			},
		},
		{
			Case:  types.Case{Name: "collection/missing-key", Endpoint: CollectionSearch, Path: culture("en"), Credential: types.CredentialMissing},
			Rules: []contract.Rule{unauthorized},
		},
		{
			Case:  types.Case{Name: "collection/invalid-key", Endpoint: CollectionSearch, Path: culture("en"), Credential: types.CredentialInvalid},
			Rules: []contract.Rule{unauthorized},
		},

		// object detail
		{
			Case: types.Case{Name: "object/night-watch", Endpoint: ObjectDetail, Path: object("nl", NightWatch)},
			Rules: []contract.Rule{ok, jsonBody,
				contract.FieldEquals("artObject.objectNumber", NightWatch),
				contract.FieldEquals("artObject.title", NightWatchTitle),
				contract.FieldEquals("artObject.principalOrFirstMaker", Rembrandt),
				contract.FieldPresent("artObject.webImage.url"),
				schema(ObjectDetail)},
		},
		{
			Case:  types.Case{Name: "object/missing-key", Endpoint: ObjectDetail, Path: object("nl", NightWatch), Credential: types.CredentialMissing},
			Rules: []contract.Rule{unauthorized},
		},
		{
			Case:  types.Case{Name: "object/invalid-key", Endpoint: ObjectDetail, Path: object("nl", NightWatch), Credential: types.CredentialInvalid},
			Rules: []contract.Rule{unauthorized},
		},
		{
			Case: types.Case{Name: "object/invalid-format", Endpoint: ObjectDetail, Path: object("nl", NightWatch),
				Params: types.ParameterSet{"format": "invalidFormat"}},
			Rules: []contract.Rule{contract.StatusIn(http.StatusBadRequest, http.StatusNotFound)},
		},
		{
			Case: types.Case{Name: "object/unknown-id", Endpoint: ObjectDetail, Path: object("nl", UnknownObject)},
			Rules: []contract.Rule{
				contract.StatusIn(http.StatusNotFound).AsKnownIssue("unknown object numbers do not return 404 upstream; reported"),
			},
		},
		{
			Case: types.Case{Name: "object/round-trip", Endpoint: ObjectDetail, Path: culture("en"), Identifier: ObjectSource},
			Rules: []contract.Rule{ok, jsonBody,
				contract.FieldEqualsIdentifier("artObject.objectNumber"),
				schema(ObjectDetail)},
		},

		// image tiles
		{
			Case:  types.Case{Name: "tiles/valid", Endpoint: ImageTiles, Path: object("en", NightWatch)},
			Rules: []contract.Rule{ok, jsonBody, schema(ImageTiles)},
		},
		{
			Case:  types.Case{Name: "tiles/missing-key", Endpoint: ImageTiles, Path: object("en", NightWatch), Credential: types.CredentialMissing},
			Rules: []contract.Rule{unauthorized},
		},
		{
			Case:  types.Case{Name: "tiles/invalid-key", Endpoint: ImageTiles, Path: object("en", OtherObject), Credential: types.CredentialInvalid},
			Rules: []contract.Rule{unauthorized},
		},
		{
			Case:  types.Case{Name: "tiles/unknown-object", Endpoint: ImageTiles, Path: object("en", UnknownTiles)},
			Rules: []contract.Rule{contract.StatusIn(http.StatusForbidden, http.StatusNotFound)},
		},

		// userset listing
		{
			Case: types.Case{Name: "usersets/list", Endpoint: UsersetList, Path: culture("nl")},
			Rules: []contract.Rule{ok, jsonBody, contract.NonEmpty("userSets"),
				contract.FieldPresent("userSets.0.id"),
				contract.FieldPresent("userSets.0.name"),
				schema(UsersetList)},
		},
		{
			Case: types.Case{Name: "usersets/pagination", Endpoint: UsersetList, Path: culture("nl"),
				Params: types.ParameterSet{"page": 0},
				Peer:   types.ParameterSet{"page": 1}},
			Rules: []contract.Rule{ok, jsonBody, contract.LeadingElementsDiffer("userSets", "id", "count")},
		},
		{
			Case: types.Case{Name: "usersets/page-within-limit", Endpoint: UsersetList, Path: culture("nl"),
				Params: types.ParameterSet{"page": PageCeiling/100 - 1, "pageSize": 100}},
			Rules: []contract.Rule{ok, jsonBody},
		},
		{
			Case: types.Case{Name: "usersets/page-limit", Endpoint: UsersetList, Path: culture("nl"),
				Params: types.ParameterSet{"page": 200, "pageSize": 100}},
			Rules: []contract.Rule{
				contract.StatusIn(http.StatusBadRequest).AsKnownIssue("page * pageSize > 10,000 is not rejected upstream; pending confirmation"),
				contract.BodyContains("error", PageLimitMessage).AsKnownIssue("rejection message unconfirmed"),
			},
		},
		{
			Case:  types.Case{Name: "usersets/missing-key", Endpoint: UsersetList, Path: culture("nl"), Credential: types.CredentialMissing},
			Rules: []contract.Rule{unauthorized},
		},

		// userset detail
		{
			Case: types.Case{Name: "userset/detail", Endpoint: UsersetDetail, Path: culture("nl"), Identifier: UsersetSource},
			Rules: []contract.Rule{ok, jsonBody,
				contract.FieldPresent("userSet"),
				contract.FieldEqualsIdentifier("userSet.id"),
				contract.FieldPresent("userSet.links.web"),
				contract.FieldPresent("userSet.name"),
				contract.FieldAtLeast("userSet.count", 0),
				schema(UsersetDetail)},
		},
		{
			Case:  types.Case{Name: "userset/invalid-key", Endpoint: UsersetDetail, Path: culture("nl"), Identifier: UsersetSource, Credential: types.CredentialInvalid},
			Rules: []contract.Rule{unauthorized},
		},
		{
			Case:  types.Case{Name: "userset/missing-key", Endpoint: UsersetDetail, Path: culture("nl"), Identifier: UsersetSource, Credential: types.CredentialMissing},
			Rules: []contract.Rule{unauthorized},
		},
	}

	for i := range cases {
		if cases[i].Credential == "" {
			cases[i].Credential = types.CredentialValid
		}
	}
	return cases
}

// Filter keeps the cases whose name starts with one of the prefixes. No
// prefixes keeps everything.
func Filter(cases []Case, prefixes []string) []Case {
	if len(prefixes) == 0 {
		return cases
	}
	var kept []Case
	for _, c := range cases {
		for _, p := range prefixes {
			if strings.HasPrefix(c.Name, p) {
				kept = append(kept, c)
				break
			}
		}
	}
	return kept
}

// Validate checks the table for mistakes that would make results ambiguous
func Validate(cases []Case) error {
	seen := make(map[string]bool, len(cases))
	for _, c := range cases {
		if c.Name == "" {
			return fmt.Errorf("case without a name for %s", c.Endpoint.Family)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate case name %s", c.Name)
		}
		seen[c.Name] = true
		if len(c.Rules) == 0 {
			return fmt.Errorf("case %s has no rules", c.Name)
		}
		if c.Identifier != nil && c.Endpoint.Placeholder == "" {
			return fmt.Errorf("case %s needs an identifier but %s has no placeholder", c.Name, c.Endpoint.Family)
		}
	}
	return nil
}

// Sources returns the distinct identifier sources the cases depend on
func Sources(cases []Case) []*types.IdentifierSource {
	var sources []*types.IdentifierSource
	seen := make(map[string]bool)
	for _, c := range cases {
		if c.Identifier == nil || seen[c.Identifier.Name] {
			continue
		}
		seen[c.Identifier.Name] = true
		sources = append(sources, c.Identifier)
	}
	return sources
}
