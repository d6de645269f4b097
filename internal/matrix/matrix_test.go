package matrix

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"museum-api-verifier/internal/contract"
	"museum-api-verifier/internal/parser"
	"museum-api-verifier/internal/types"
)

func build(t *testing.T) []Case {
	t.Helper()
	doc, err := parser.LoadContract(context.Background(), "")
	require.NoError(t, err)
	return Build(doc)
}

func find(t *testing.T, cases []Case, name string) Case {
	t.Helper()
	for _, c := range cases {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("case %s not in matrix", name)
	return Case{}
}

func TestBuildIsValid(t *testing.T) {
	cases := build(t)
	require.NoError(t, Validate(cases))

	families := map[types.Family]int{}
	for _, c := range cases {
		families[c.Endpoint.Family]++
		assert.NotEmpty(t, c.Credential, c.Name)
	}
	for _, spec := range Endpoints() {
		assert.Positive(t, families[spec.Family], "no cases for %s", spec.Family)
	}
}

func TestEndpointsAreDocumented(t *testing.T) {
	doc, err := parser.LoadContract(context.Background(), "")
	require.NoError(t, err)

	var templates []string
	for _, spec := range Endpoints() {
		templates = append(templates, spec.PathTemplate)
	}
	assert.Empty(t, doc.Missing(templates))
}

func TestEveryFamilyChecksAuthentication(t *testing.T) {
	cases := build(t)
	missing := map[types.Family]bool{}
	for _, c := range cases {
		if c.Credential == types.CredentialMissing {
			missing[c.Endpoint.Family] = true
			require.Len(t, c.Rules, 1, c.Name)
			assert.Equal(t, "status is 401", c.Rules[0].Description)
		}
	}
	for _, spec := range Endpoints() {
		assert.True(t, missing[spec.Family], "%s has no missing-key case", spec.Family)
	}
}

func TestKnownIssueCases(t *testing.T) {
	cases := build(t)

	tests := []struct {
		name  string
		rules int
	}{
		{"collection/negative-page-size", 1},
		{"object/unknown-id", 1},
		{"usersets/page-limit", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := find(t, cases, tt.name)
			require.Len(t, c.Rules, tt.rules)
			for _, r := range c.Rules {
				assert.Equal(t, contract.SeverityKnownIssue, r.Severity)
				assert.NotEmpty(t, r.Reason)
			}
		})
	}

	for _, c := range cases {
		if strings.HasSuffix(c.Name, "/default") || c.Name == "object/night-watch" {
			for _, r := range c.Rules {
				assert.NotEqual(t, contract.SeverityKnownIssue, r.Severity, c.Name)
			}
		}
	}
}

func TestDependentCases(t *testing.T) {
	cases := build(t)

	detail := find(t, cases, "userset/detail")
	require.NotNil(t, detail.Identifier)
	assert.Equal(t, UsersetSource, detail.Identifier)
	assert.Equal(t, "usersetId", detail.Endpoint.Placeholder)

	sources := Sources(cases)
	require.Len(t, sources, 2)
	assert.Equal(t, "object", sources[0].Name)
	assert.Equal(t, "userset", sources[1].Name)
}

func TestPaginationCasesHavePeers(t *testing.T) {
	cases := build(t)
	for _, name := range []string{"collection/page-2", "usersets/pagination"} {
		c := find(t, cases, name)
		assert.NotEmpty(t, c.Peer, name)
	}
	assert.Empty(t, find(t, cases, "collection/default").Peer)
}

func TestDeadlines(t *testing.T) {
	assert.Equal(t, DetailDeadline, ObjectDetail.Deadline)
	assert.Equal(t, DetailDeadline, ImageTiles.Deadline)
	assert.Zero(t, CollectionSearch.Deadline)
	assert.Empty(t, ImageTiles.BaseParams)
}

func TestFilter(t *testing.T) {
	cases := build(t)

	assert.Len(t, Filter(cases, nil), len(cases))

	tiles := Filter(cases, []string{"tiles/"})
	require.NotEmpty(t, tiles)
	for _, c := range tiles {
		assert.Equal(t, types.FamilyImageTiles, c.Endpoint.Family)
	}

	mixed := Filter(cases, []string{"object/night-watch", "usersets/list"})
	require.Len(t, mixed, 2)

	assert.Empty(t, Filter(cases, []string{"nope"}))
}

func TestValidateRejects(t *testing.T) {
	status := []contract.Rule{contract.StatusIn(200)}

	tests := []struct {
		name  string
		cases []Case
		want  string
	}{
		{
			name:  "unnamed",
			cases: []Case{{Case: types.Case{Endpoint: CollectionSearch}, Rules: status}},
			want:  "without a name",
		},
		{
			name: "duplicate",
			cases: []Case{
				{Case: types.Case{Name: "a", Endpoint: CollectionSearch}, Rules: status},
				{Case: types.Case{Name: "a", Endpoint: CollectionSearch}, Rules: status},
			},
			want: "duplicate case name a",
		},
		{
			name:  "no rules",
			cases: []Case{{Case: types.Case{Name: "a", Endpoint: CollectionSearch}}},
			want:  "has no rules",
		},
		{
			name:  "identifier without placeholder",
			cases: []Case{{Case: types.Case{Name: "a", Endpoint: CollectionSearch, Identifier: UsersetSource}, Rules: status}},
			want:  "has no placeholder",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cases)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
