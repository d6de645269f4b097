package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"museum-api-verifier/internal/matrix"
	"museum-api-verifier/internal/parser"
)

func TestListText(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)

	doc, err := parser.LoadContract(context.Background(), "")
	require.NoError(t, err)
	all := matrix.Build(doc)

	assert.Contains(t, out, "CASE")
	assert.Contains(t, out, "needs userset id")
	assert.Contains(t, out, "peer page")
	assert.Contains(t, out, "known issue")
	assert.Contains(t, out, "collection/page-size-8")
	assert.Contains(t, out, strconv.Itoa(len(all))+" case(s)")
}

func TestListJSON(t *testing.T) {
	out, err := execute(t, "list", "--format", "json", "--only", "userset/")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   []CaseInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 3)

	detail := resp.Data[0]
	assert.Equal(t, "userset/detail", detail.Name)
	assert.Equal(t, "userset", detail.Identifier)
	assert.Equal(t, "format=json", detail.Params)
	assert.Contains(t, detail.Rules, "userSet.id equals the requested identifier")
}

func TestContractCommand(t *testing.T) {
	out, err := execute(t, "contract")
	require.NoError(t, err)
	assert.Contains(t, out, "contract "+parser.EmbeddedSource)
	assert.Contains(t, out, "GET /{culture}/collection (searchCollection) -> 200, 401")
	assert.Contains(t, out, "all endpoint families documented")
}

func TestContractCommandReportsMissingPaths(t *testing.T) {
	partial := `openapi: 3.0.3
info:
  title: partial
  version: "1"
paths:
  /{culture}/collection:
    get:
      parameters:
        - name: culture
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: ok
`
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte(partial), 0644))

	out, err := execute(t, "contract", "--source", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data ContractInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Data.Operations, 1)
	assert.Len(t, resp.Data.Missing, 4)

	_, err = execute(t, "contract", "--source", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
