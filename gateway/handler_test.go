package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/corpus/storage"
)

func postSearch(t *testing.T, handler http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandlerReturnsResults(t *testing.T) {
	staging := &stubStaging{hits: []storage.LexicalHit{lexHit(1, 5.0, "matching document text")}}
	g := newGateway(t, staging, &stubVectors{})

	rec := postSearch(t, g.Handler(), Request{Query: "matching"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Contains(t, resp.Results[0].Snippet, "matching document")
}

func TestHandlerRejectsEmptyQuery(t *testing.T) {
	g := newGateway(t, &stubStaging{}, &stubVectors{})

	rec := postSearch(t, g.Handler(), Request{Query: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRejectsInvalidAudience(t *testing.T) {
	g := newGateway(t, &stubStaging{}, &stubVectors{})

	rec := postSearch(t, g.Handler(), Request{Query: "ok", Audience: "martian"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRejectsMalformedBody(t *testing.T) {
	g := newGateway(t, &stubStaging{}, &stubVectors{})

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerServiceUnavailableWhenBothBackendsDown(t *testing.T) {
	g := newGateway(t,
		&stubStaging{err: errors.New("down")},
		&stubVectors{err: errors.New("down")},
	)

	rec := postSearch(t, g.Handler(), Request{Query: "anything"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	g := newGateway(t, &stubStaging{}, &stubVectors{})

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
