package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"stellarbridge/internal/ledger/ledgertest"
	dErrors "stellarbridge/pkg/domain-errors"
)

var aliceAccount = "G" + strings.Repeat("A", 55)

type federationServer struct {
	srv      *httptest.Server
	toml     string
	records  map[string]string
	hits     atomic.Int32
	release  chan struct{}
	tomlHits atomic.Int32
}

func newFederationServer() *federationServer {
	fs := &federationServer{records: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/stellar.toml", func(w http.ResponseWriter, r *http.Request) {
		fs.tomlHits.Add(1)
		_, _ = fmt.Fprint(w, fs.toml)
	})
	mux.HandleFunc("/federation", func(w http.ResponseWriter, r *http.Request) {
		fs.hits.Add(1)
		if fs.release != nil {
			<-fs.release
		}
		if r.URL.Query().Get("type") != "name" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		q := r.URL.Query().Get("q")
		id, ok := fs.records[q]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"stellar_address": q, "account_id": id})
	})
	fs.srv = httptest.NewServer(mux)
	fs.toml = fmt.Sprintf("VERSION = \"2.0.0\"\nFEDERATION_SERVER = %q\n", fs.srv.URL+"/federation")
	return fs
}

type ResolverSuite struct {
	suite.Suite
	fed      *federationServer
	resolver *Resolver
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.fed = newFederationServer()
	s.fed.records["alice*bank.example"] = aliceAccount
	s.resolver = New(ledgertest.New(),
		WithHTTPClient(s.fed.srv.Client()),
		WithTOMLURL(func(string) string { return s.fed.srv.URL + "/.well-known/stellar.toml" }),
	)
}

func (s *ResolverSuite) TearDownTest() {
	s.fed.srv.Close()
}

func (s *ResolverSuite) TestResolve() {
	addr, err := Parse("alice*bank.example")
	s.Require().NoError(err)

	id, err := s.resolver.Resolve(context.Background(), addr)
	s.Require().NoError(err)
	s.Equal(aliceAccount, id)
}

func (s *ResolverSuite) TestResolveIgnoresExtra() {
	id, err := s.resolver.ResolveAccount(context.Background(), "alice*bank.example:savings")
	s.Require().NoError(err)
	s.Equal(aliceAccount, id)
}

func (s *ResolverSuite) TestResolveCachesSuccess() {
	for i := 0; i < 3; i++ {
		_, err := s.resolver.ResolveAccount(context.Background(), "alice*bank.example")
		s.Require().NoError(err)
	}
	s.Equal(int32(1), s.fed.hits.Load())
	s.Equal(int32(1), s.fed.tomlHits.Load())
}

func (s *ResolverSuite) TestConcurrentResolutionsShareOneLookup() {
	s.fed.release = make(chan struct{})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.resolver.ResolveAccount(context.Background(), "alice*bank.example")
			if err == nil && id != aliceAccount {
				err = fmt.Errorf("unexpected account %s", id)
			}
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(s.fed.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	s.Equal(int32(1), s.fed.hits.Load())
}

func (s *ResolverSuite) TestCancelledCallerDoesNotFailSharedLookup() {
	s.fed.release = make(chan struct{})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := s.resolver.ResolveAccount(ctxA, "alice*bank.example")
		errA <- err
	}()
	s.Require().Eventually(func() bool { return s.fed.hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		id  string
		err error
	}
	resB := make(chan result, 1)
	go func() {
		id, err := s.resolver.ResolveAccount(context.Background(), "alice*bank.example")
		resB <- result{id, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		s.Require().Error(err)
		s.True(errors.Is(err, context.Canceled))
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	case <-time.After(time.Second):
		s.FailNow("cancelled caller kept waiting")
	}

	close(s.fed.release)
	select {
	case r := <-resB:
		s.Require().NoError(r.err)
		s.Equal(aliceAccount, r.id)
	case <-time.After(2 * time.Second):
		s.FailNow("live caller never resolved")
	}
	s.Equal(int32(1), s.fed.hits.Load())
}

func (s *ResolverSuite) TestLookupTimeoutBoundsSharedLookup() {
	s.fed.release = make(chan struct{})
	defer close(s.fed.release)
	resolver := New(ledgertest.New(),
		WithHTTPClient(s.fed.srv.Client()),
		WithTOMLURL(func(string) string { return s.fed.srv.URL + "/.well-known/stellar.toml" }),
		WithLookupTimeout(50*time.Millisecond),
	)

	_, err := resolver.ResolveAccount(context.Background(), "alice*bank.example")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeFederationFailed))
}

func (s *ResolverSuite) TestUnknownNameFails() {
	_, err := s.resolver.ResolveAccount(context.Background(), "mallory*bank.example")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeFederationFailed))

	_, err = s.resolver.ResolveAccount(context.Background(), "mallory*bank.example")
	s.Require().Error(err)
	s.Equal(int32(2), s.fed.hits.Load(), "failures are not cached")
}

func (s *ResolverSuite) TestMissingFederationServerFails() {
	s.fed.toml = "VERSION = \"2.0.0\"\n"
	_, err := s.resolver.ResolveAccount(context.Background(), "alice*bank.example")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeFederationFailed))
	s.Equal(int32(0), s.fed.hits.Load())
}

func (s *ResolverSuite) TestMalformedTOMLFails() {
	s.fed.toml = "FEDERATION_SERVER = "
	_, err := s.resolver.ResolveAccount(context.Background(), "alice*bank.example")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeFederationFailed))
}

func (s *ResolverSuite) TestInvalidAccountIDFromServerFails() {
	s.fed.records["eve*bank.example"] = "not-an-account"
	_, err := s.resolver.ResolveAccount(context.Background(), "eve*bank.example")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeFederationFailed))
}

func (s *ResolverSuite) TestUnreachableDomainFails() {
	s.fed.srv.Close()
	_, err := s.resolver.ResolveAccount(context.Background(), "alice*bank.example")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeFederationFailed))
}

func (s *ResolverSuite) TestRawAccountIDPassesThrough() {
	raw := "G" + strings.Repeat("B", 55)
	id, err := s.resolver.ResolveAccount(context.Background(), raw)
	s.Require().NoError(err)
	s.Equal(raw, id)
	s.Equal(int32(0), s.fed.tomlHits.Load())
}

func (s *ResolverSuite) TestGarbageIsInvalidAddress() {
	_, err := s.resolver.ResolveAccount(context.Background(), "not an address")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidAddress))

	_, err = s.resolver.ResolveAccount(context.Background(), "alice*nodot")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidAddress))
}

func TestMemoryCacheExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
