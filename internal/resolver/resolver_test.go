package resolver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"museum-api-verifier/internal/museumtest"
	"museum-api-verifier/internal/transport"
	"museum-api-verifier/internal/types"
)

var usersetSource = types.IdentifierSource{
	Name: "userset",
	Endpoint: types.EndpointSpec{
		Family:       types.FamilyUsersetList,
		PathTemplate: "{culture}/usersets",
		BaseParams:   types.ParameterSet{"format": "json"},
	},
	Path:     map[string]string{"culture": "nl"},
	ListPath: "userSets",
	Field:    "id",
}

func newResolver(t *testing.T, srv *museumtest.Server, key string) *Resolver {
	t.Helper()
	adapter, err := transport.NewHTTPAdapter(transport.Options{BaseURL: srv.BaseURL}, zap.NewNop())
	require.NoError(t, err)
	return New(adapter, key, zap.NewNop())
}

func TestResolveFirstElement(t *testing.T) {
	srv := museumtest.New()
	defer srv.Close()

	r := newResolver(t, srv, museumtest.APIKey)
	id, err := r.Resolve(context.Background(), usersetSource)
	require.NoError(t, err)

	assert.Equal(t, types.DynamicIdentifier{Source: "userset", Value: "101-set-01"}, id)
}

func TestResolveIsMemoized(t *testing.T) {
	srv := museumtest.New()
	defer srv.Close()

	r := newResolver(t, srv, museumtest.APIKey)

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Resolve(context.Background(), usersetSource)
			if err == nil {
				ids[i] = id.Value
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, "101-set-01", id)
	}
	assert.Equal(t, 1, srv.Hits("/api/nl/usersets"), "one bootstrap request per run")
}

func TestResolveFailures(t *testing.T) {
	tests := []struct {
		name       string
		configure  func(*museumtest.Server)
		key        string
		source     types.IdentifierSource
		wantReason string
	}{
		{
			name:       "empty listing",
			configure:  func(s *museumtest.Server) { s.EmptyUsersets = true },
			key:        museumtest.APIKey,
			source:     usersetSource,
			wantReason: "listing array userSets is empty",
		},
		{
			name:       "listing status",
			configure:  func(s *museumtest.Server) { s.UsersetListStatus = http.StatusServiceUnavailable },
			key:        museumtest.APIKey,
			source:     usersetSource,
			wantReason: "listing returned status 503",
		},
		{
			name:       "bad credential",
			configure:  func(*museumtest.Server) {},
			key:        "wrong",
			source:     usersetSource,
			wantReason: "listing returned status 401",
		},
		{
			name:      "absent array",
			configure: func(*museumtest.Server) {},
			key:       museumtest.APIKey,
			source: func() types.IdentifierSource {
				s := usersetSource
				s.ListPath = "sets"
				return s
			}(),
			wantReason: "listing array sets is absent",
		},
		{
			name:      "missing field",
			configure: func(*museumtest.Server) {},
			key:       museumtest.APIKey,
			source: func() types.IdentifierSource {
				s := usersetSource
				s.Field = "uuid"
				return s
			}(),
			wantReason: "first element of userSets has no uuid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := museumtest.New()
			defer srv.Close()
			tt.configure(srv)

			r := newResolver(t, srv, tt.key)
			id, err := r.Resolve(context.Background(), tt.source)
			require.Error(t, err)
			assert.Empty(t, id.Value)

			var perr *PreconditionError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.wantReason, perr.Reason)

			// The failure is memoized too.
			_, err = r.Resolve(context.Background(), tt.source)
			assert.Error(t, err)
			assert.Equal(t, 1, srv.Hits("/api/nl/usersets"))
		})
	}
}

func TestResolveTransportFailure(t *testing.T) {
	srv := museumtest.New()
	r := newResolver(t, srv, museumtest.APIKey)
	srv.Close()

	_, err := r.Resolve(context.Background(), usersetSource)
	require.Error(t, err)

	var perr *PreconditionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "listing request failed", perr.Reason)

	var terr *transport.Error
	assert.True(t, errors.As(err, &terr))
}
