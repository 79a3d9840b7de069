package enrich

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/leadpipe/pkg/apollo"
	"github.com/sells-group/leadpipe/pkg/clado"
	"github.com/sells-group/leadpipe/pkg/icypeas"
)

// --- Clado Mock ---

type mockCladoClient struct {
	mock.Mock
}

func (m *mockCladoClient) EnrichContacts(ctx context.Context, req clado.ContactsRequest) ([]clado.Contact, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]clado.Contact), args.Error(1)
}

// --- Apollo Mock ---

type mockApolloClient struct {
	mock.Mock
}

func (m *mockApolloClient) MatchPerson(ctx context.Context, req apollo.MatchRequest) (*apollo.Person, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apollo.Person), args.Error(1)
}

// --- Icypeas Mock ---

type mockIcypeasClient struct {
	mock.Mock
}

func (m *mockIcypeasClient) LaunchBulk(ctx context.Context, req icypeas.BulkRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockIcypeasClient) ReadResults(ctx context.Context, bulkID string) ([]icypeas.SearchResult, error) {
	args := m.Called(ctx, bulkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]icypeas.SearchResult), args.Error(1)
}
