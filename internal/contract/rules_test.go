package contract

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"museum-api-verifier/internal/envelope"
	"museum-api-verifier/internal/types"
)

func env(status int, body string) *envelope.Envelope {
	h := http.Header{}
	h.Set("Content-Type", "application/json; charset=utf-8")
	return envelope.Parse(status, h, []byte(body), 0)
}

const collection = `{
  "count": 3,
  "artObjects": [
    {"objectNumber": "SK-C-5", "principalOrFirstMaker": "Rembrandt van Rijn", "webImage": {"url": "u"}, "links": {"web": "https://m/nl/collection/SK-C-5"}},
    {"objectNumber": "SK-A-1", "principalOrFirstMaker": "Rembrandt van Rijn", "webImage": null, "links": {"web": "https://m/nl/collection/SK-A-1"}},
    {"objectNumber": "SK-A-2", "principalOrFirstMaker": "Jan Steen", "links": {"web": "https://m/en/collection/SK-A-2"}}
  ]
}`

func check(t *testing.T, r Rule, in Input) error {
	t.Helper()
	out := Evaluate(in, []Rule{r})
	require.Len(t, out, 1)
	if out[0].Violation == nil {
		return nil
	}
	return out[0].Violation
}

func TestStatusIn(t *testing.T) {
	tests := []struct {
		name     string
		rule     Rule
		status   int
		wantDesc string
		wantErr  bool
	}{
		{"single match", StatusIn(200), 200, "status is 200", false},
		{"single mismatch", StatusIn(401), 200, "status is 401", true},
		{"set match", StatusIn(404, 400), 400, "status is one of {400, 404}", false},
		{"set mismatch", StatusIn(403, 404), 500, "status is one of {403, 404}", true},
		{"class match", StatusClass(400, 499), 422, "status is within 400-499", false},
		{"class mismatch", StatusClass(400, 499), 200, "status is within 400-499", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantDesc, tt.rule.Description)
			err := check(t, tt.rule, Input{Envelope: env(tt.status, `{}`)})
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestContentType(t *testing.T) {
	assert.NoError(t, check(t, ContentType("application/json"), Input{Envelope: env(200, `{}`)}))

	html := envelope.Parse(200, http.Header{"Content-Type": {"text/html"}}, []byte("<p>"), 0)
	assert.Error(t, check(t, ContentType("application/json"), Input{Envelope: html}))

	broken := env(200, `{"a":`)
	err := check(t, ContentType("application/json"), Input{Envelope: broken})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestFieldRules(t *testing.T) {
	detail := env(200, `{"artObject": {"objectNumber": "SK-C-5", "title": "De Nachtwacht", "webImage": {"url": "u"}, "count": 3, "empty": null}}`)

	tests := []struct {
		name    string
		rule    Rule
		in      Input
		wantErr string
	}{
		{"present", FieldPresent("artObject.webImage.url"), Input{Envelope: detail}, ""},
		{"missing", FieldPresent("artObject.nope"), Input{Envelope: detail}, "is missing"},
		{"null", FieldPresent("artObject.empty"), Input{Envelope: detail}, "is null"},
		{"equals", FieldEquals("artObject.title", "De Nachtwacht"), Input{Envelope: detail}, ""},
		{"not equals", FieldEquals("artObject.title", "Night Watch"), Input{Envelope: detail}, `want "Night Watch"`},
		{"identifier", FieldEqualsIdentifier("artObject.objectNumber"), Input{Envelope: detail, Identifier: "SK-C-5"}, ""},
		{"identifier drift", FieldEqualsIdentifier("artObject.objectNumber"), Input{Envelope: detail, Identifier: "SK-A-1"}, `want "SK-A-1"`},
		{"identifier absent", FieldEqualsIdentifier("artObject.objectNumber"), Input{Envelope: detail}, "no resolved identifier"},
		{"at least", FieldAtLeast("artObject.count", 0), Input{Envelope: detail}, ""},
		{"below", FieldAtLeast("artObject.count", 5), Input{Envelope: detail}, "is 3"},
		{"not a number", FieldAtLeast("artObject.title", 0), Input{Envelope: detail}, "not a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := check(t, tt.rule, tt.in)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEveryElementIsUniversallyQuantified(t *testing.T) {
	in := Input{Envelope: env(200, collection)}

	// The first two elements satisfy the filter; only the last does not.
	err := check(t, EveryElementEquals("artObjects", "principalOrFirstMaker", "Rembrandt van Rijn"), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 elements violate")
	assert.Contains(t, err.Error(), "[2]")

	err = check(t, EveryElementContains("artObjects", "links.web", "/nl/"), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[2]")

	err = check(t, EveryElementPresent("artObjects", "webImage"), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3 elements violate")

	err = check(t, EveryElementHasKey("artObjects", "webImage"), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 elements violate")

	assert.NoError(t, check(t, EveryElementPresent("artObjects", "objectNumber"), in))
}

func TestEveryElementNeedsArray(t *testing.T) {
	err := check(t, EveryElementPresent("artObjects", "title"), Input{Envelope: env(200, `{"count": 0}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "artObjects is missing")

	err = check(t, EveryElementPresent("artObjects", "title"), Input{Envelope: env(200, `{"artObjects": {}}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an array")
}

func TestNonEmptyAndSorted(t *testing.T) {
	assert.NoError(t, check(t, NonEmpty("artObjects"), Input{Envelope: env(200, collection)}))
	assert.Error(t, check(t, NonEmpty("artObjects"), Input{Envelope: env(200, `{"artObjects": []}`)}))

	r := SortedNonEmpty("artObjects", "relevance")
	assert.Contains(t, r.Description, "order itself not verified")
	assert.NoError(t, check(t, r, Input{Envelope: env(200, collection)}))
}

func TestLengthExactly(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		body    string
		wantErr bool
	}{
		{"exact", LengthExactly("artObjects", 3, "count"), collection, false},
		{"too few with enough upstream", LengthExactly("artObjects", 2, "count"), `{"count": 10, "artObjects": [{}]}`, true},
		{"fewer upstream", LengthExactly("artObjects", 8, "count"), collection, false},
		{"fewer upstream without count", LengthExactly("artObjects", 8, ""), collection, true},
		{"too many", LengthExactly("artObjects", 2, "count"), collection, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := check(t, tt.rule, Input{Envelope: env(200, tt.body)})
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestPageLength(t *testing.T) {
	two := `{"count": 7, "artObjects": [{}, {}]}`
	five := `{"count": 7, "artObjects": [{}, {}, {}, {}, {}]}`
	none := `{"count": 7, "artObjects": []}`

	tests := []struct {
		name    string
		body    string
		params  types.ParameterSet
		wantErr bool
	}{
		{"full first page", five, types.ParameterSet{"ps": 5, "p": 1}, false},
		{"short last page", two, types.ParameterSet{"ps": 5, "p": 2}, false},
		{"last page padded", five, types.ParameterSet{"ps": 5, "p": 2}, true},
		{"past the end", none, types.ParameterSet{"ps": 5, "p": 3}, false},
		{"past the end with elements", two, types.ParameterSet{"ps": 5, "p": 3}, true},
		{"page defaults to first", two, types.ParameterSet{"ps": 5}, true},
		{"string page", two, types.ParameterSet{"p": "2"}, false},
		{"bad page", two, types.ParameterSet{"p": "zero"}, true},
	}

	rule := PageLength("artObjects", 5, "count", "p")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := check(t, rule, Input{Envelope: env(200, tt.body), Params: tt.params})
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestLeadingElementsDiffer(t *testing.T) {
	rule := LeadingElementsDiffer("userSets", "id", "count")
	page0 := env(200, `{"count": 25, "userSets": [{"id": "a"}, {"id": "b"}]}`)
	page1 := env(200, `{"count": 25, "userSets": [{"id": "c"}]}`)
	same := env(200, `{"count": 25, "userSets": [{"id": "a"}]}`)
	empty := env(200, `{"count": 25, "userSets": []}`)
	small := env(200, `{"count": 2, "userSets": []}`)

	assert.NoError(t, check(t, rule, Input{Envelope: page0, Peer: page1}))

	err := check(t, rule, Input{Envelope: page0, Peer: same, Params: types.ParameterSet{"page": 0}, PeerParams: types.ParameterSet{"page": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `both pages start with id="a"`)

	err = check(t, rule, Input{Envelope: page0, Peer: empty})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient data")

	small0 := env(200, `{"count": 2, "userSets": [{"id": "a"}, {"id": "b"}]}`)
	assert.NoError(t, check(t, rule, Input{Envelope: small0, Peer: small}), "single page of results is not degenerate")

	assert.Error(t, check(t, rule, Input{Envelope: page0}))
}

func TestBodyContains(t *testing.T) {
	e := env(400, `{"error": "page * pageSize cannot exceed 10,000"}`)
	assert.NoError(t, check(t, BodyContains("error", "cannot exceed 10,000"), Input{Envelope: e}))
	assert.NoError(t, check(t, BodyContains("", "pageSize"), Input{Envelope: e}))
	assert.Error(t, check(t, BodyContains("error", "nope"), Input{Envelope: e}))
}
