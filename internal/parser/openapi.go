package parser

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed museum.yaml
var museumContract []byte

// EmbeddedSource names the built-in contract document
const EmbeddedSource = "embedded:museum.yaml"

// Contract is a loaded and validated OpenAPI document
type Contract struct {
	Source string
	doc    *openapi3.T
}

// Operation summarizes one documented GET operation
type Operation struct {
	Path       string
	ID         string
	Summary    string
	Parameters []string
	Statuses   []int
}

// LoadContract loads the contract from a file path, an http(s) URL, or the
// embedded document when source is empty.
func LoadContract(ctx context.Context, source string) (*Contract, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case source == "" || source == EmbeddedSource:
		source = EmbeddedSource
		data = museumContract
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		data, err = fetchOpenAPIDoc(ctx, source)
	default:
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read contract %s: %w", source, err)
	}
	return parseContract(ctx, source, data)
}

func parseContract(ctx context.Context, source string, data []byte) (*Contract, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI doc: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI doc %s: %w", source, err)
	}
	return &Contract{Source: source, doc: doc}, nil
}

// fetchOpenAPIDoc fetches the OpenAPI documentation from the given URL
func fetchOpenAPIDoc(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// ResponseSchema returns the JSON schema documented for a GET on path with
// the given status, or nil when the document has none. Paths are written as
// templates, with or without the leading slash.
func (c *Contract) ResponseSchema(path string, status int) *openapi3.Schema {
	op := c.get(path)
	if op == nil || op.Responses == nil {
		return nil
	}
	ref := op.Responses.Status(status)
	if ref == nil || ref.Value == nil {
		return nil
	}
	media := ref.Value.Content.Get("application/json")
	if media == nil || media.Schema == nil {
		return nil
	}
	return media.Schema.Value
}

// Missing returns the path templates the document does not describe
func (c *Contract) Missing(paths []string) []string {
	var missing []string
	for _, p := range paths {
		if c.get(p) == nil {
			missing = append(missing, p)
		}
	}
	return missing
}

// Operations lists the documented GET operations sorted by path
func (c *Contract) Operations() []Operation {
	var ops []Operation
	for path, item := range c.doc.Paths.Map() {
		op := item.Get
		if op == nil {
			continue
		}
		o := Operation{Path: path, ID: op.OperationID, Summary: op.Summary}

		params := append(openapi3.Parameters{}, item.Parameters...)
		params = append(params, op.Parameters...)
		for _, p := range params {
			if p.Value == nil {
				continue
			}
			o.Parameters = append(o.Parameters, p.Value.In+":"+p.Value.Name)
		}

		if op.Responses != nil {
			for code := range op.Responses.Map() {
				n, err := strconv.Atoi(code)
				if err != nil {
					continue
				}
				o.Statuses = append(o.Statuses, n)
			}
		}
		sort.Ints(o.Statuses)
		ops = append(ops, o)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Path < ops[j].Path })
	return ops
}

func (c *Contract) get(path string) *openapi3.Operation {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	item := c.doc.Paths.Value(path)
	if item == nil {
		return nil
	}
	return item.Get
}
