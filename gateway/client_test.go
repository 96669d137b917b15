package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/vetkas2023/smart-fridge-frontend/gateway"
	"github.com/vetkas2023/smart-fridge-frontend/internal/utils"
)

type staticTokenSource struct {
	token string
	err   error
	calls int
}

func (s *staticTokenSource) GetValidToken(context.Context) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

func newTestClient(t *testing.T, handler http.Handler, options ...gateway.ClientOption) (*gateway.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := gateway.NewClient(server.URL, options...)
	require.NoError(t, err)
	return client, server
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := gateway.NewClient("")
	require.Error(t, err)
}

func TestLoginSendsNoBearer(t *testing.T) {
	var gotAuth, gotUA, gotPath string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(gateway.TokenResponse{AccessToken: "t1", ExpiresInMinutes: 60})
	})
	client, _ := newTestClient(t, handler)

	resp, err := client.Login(context.Background(), gateway.LoginRequest{Email: "a@b.c", Password: "pw"}, "test-agent/1.0")
	require.NoError(t, err)
	require.Equal(t, "t1", resp.AccessToken)
	require.EqualValues(t, 60, resp.ExpiresInMinutes)
	require.Empty(t, gotAuth)
	require.Equal(t, "test-agent/1.0", gotUA)
	require.Equal(t, "/api/v1/auth/login", gotPath)
}

func TestAuthenticatedCallAttachesBearer(t *testing.T) {
	var gotAuth, gotRequestID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		json.NewEncoder(w).Encode(gateway.User{ID: 7, Email: "a@b.c"})
	})
	ts := &staticTokenSource{token: "t1"}
	client, _ := newTestClient(t, handler, gateway.WithTokenSource(ts))

	user, err := client.GetMe(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 7, user.ID)
	require.Equal(t, "Bearer t1", gotAuth)
	require.NotEmpty(t, gotRequestID)
	require.Equal(t, 1, ts.calls)
}

func TestTokenSourceFailurePropagates(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the backend without a token")
	})
	srcErr := errors.New("no session")
	client, _ := newTestClient(t, handler, gateway.WithTokenSource(&staticTokenSource{err: srcErr}))

	_, err := client.GetMe(context.Background())
	require.ErrorIs(t, err, srcErr)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, gateway.ErrUnauthenticated},
		{"not found", http.StatusNotFound, gateway.ErrNotFound},
		{"server error", http.StatusInternalServerError, gateway.ErrServerError},
		{"bad gateway", http.StatusBadGateway, gateway.ErrServerError},
		{"other", http.StatusTeapot, gateway.ErrRequestFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			client, _ := newTestClient(t, handler, gateway.WithTokenSource(&staticTokenSource{token: "t1"}))

			err := client.Logout(context.Background())
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestStatusErrorRetainsCode(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	client, _ := newTestClient(t, handler, gateway.WithTokenSource(&staticTokenSource{token: "t1"}))

	err := client.Logout(context.Background())
	var statusErr *gateway.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTeapot, statusErr.Code)
}

func TestTimeoutMapsToErrTimeout(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	})
	client, _ := newTestClient(t, handler,
		gateway.WithTokenSource(&staticTokenSource{token: "t1"}),
		gateway.WithTimeout(30*time.Millisecond),
	)

	err := client.Logout(context.Background())
	require.ErrorIs(t, err, gateway.ErrTimeout)
}

func TestCancellationPassesThrough(t *testing.T) {
	started := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(300 * time.Millisecond)
	})
	client, _ := newTestClient(t, handler, gateway.WithTokenSource(&staticTokenSource{token: "t1"}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	err := client.Logout(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, gateway.ErrTimeout)
}

func TestGetFridgeProductsFilterParams(t *testing.T) {
	var gotQuery map[string][]string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(gateway.FridgeProductList{Items: []gateway.FridgeProduct{{ID: 9, FridgeID: 7, ProductID: 42}}})
	})
	client, _ := newTestClient(t, handler, gateway.WithTokenSource(&staticTokenSource{token: "t1"}))

	list, err := client.GetFridgeProducts(context.Background(), gateway.FridgeProductFilter{
		ProductIDEq: utils.Ptr(int64(42)),
		FridgeIDEq:  utils.Ptr(int64(7)),
	})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.EqualValues(t, 9, list.Items[0].ID)
	require.Equal(t, []string{"42"}, gotQuery["product_id_eq"])
	require.Equal(t, []string{"7"}, gotQuery["fridge_id_eq"])
}

func TestGetFridgeProductsOmitsNilFilters(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.URL.RawQuery)
		json.NewEncoder(w).Encode(gateway.FridgeProductList{})
	})
	client, _ := newTestClient(t, handler, gateway.WithTokenSource(&staticTokenSource{token: "t1"}))

	list, err := client.GetFridgeProducts(context.Background(), gateway.FridgeProductFilter{})
	require.NoError(t, err)
	require.Empty(t, list.Items)
}

func TestCreateFridgeProductBody(t *testing.T) {
	var gotBody gateway.CreateFridgeProductRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(gateway.FridgeProduct{ID: 11, FridgeID: gotBody.FridgeID, ProductID: gotBody.ProductID})
	})
	client, _ := newTestClient(t, handler, gateway.WithTokenSource(&staticTokenSource{token: "t1"}))

	rec, err := client.CreateFridgeProduct(context.Background(), gateway.CreateFridgeProductRequest{FridgeID: 7, ProductID: 42})
	require.NoError(t, err)
	require.EqualValues(t, 11, rec.ID)
	require.EqualValues(t, 7, gotBody.FridgeID)
	require.EqualValues(t, 42, gotBody.ProductID)
}

func TestDeleteFridgeProductPath(t *testing.T) {
	var gotPath, gotMethod string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	})
	client, _ := newTestClient(t, handler, gateway.WithTokenSource(&staticTokenSource{token: "t1"}))

	require.NoError(t, client.DeleteFridgeProduct(context.Background(), 13))
	require.Equal(t, "/api/v1/fridge_products/13", gotPath)
	require.Equal(t, http.MethodDelete, gotMethod)
}

func TestGetStatisticsDateRange(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2026-01-01", r.URL.Query().Get("date_from"))
		require.Equal(t, "2026-02-01", r.URL.Query().Get("date_to"))
		json.NewEncoder(w).Encode(gateway.Statistics{
			Added: []gateway.StatisticsEntry{{Name: "milk", Amount: 3}},
		})
	})
	client, _ := newTestClient(t, handler, gateway.WithTokenSource(&staticTokenSource{token: "t1"}))

	stats, err := client.GetStatistics(context.Background(), gateway.StatisticsFilter{
		DateFrom: utils.Ptr("2026-01-01"),
		DateTo:   utils.Ptr("2026-02-01"),
	})
	require.NoError(t, err)
	require.Len(t, stats.Added, 1)
	require.Equal(t, "milk", stats.Added[0].Name)
}

func TestNoTokenSourceConfigured(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the backend")
	})
	client, _ := newTestClient(t, handler)

	_, err := client.GetMe(context.Background())
	require.ErrorIs(t, err, gateway.ErrUnauthenticated)
}
