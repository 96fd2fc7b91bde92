package handler

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bornholm/remotedav/authz"
	"github.com/bornholm/remotedav/store"
	"github.com/bornholm/remotedav/store/memory"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exclusiveLockInfo = `<?xml version="1.0" encoding="utf-8"?>
<D:lockinfo xmlns:D="DAV:">
  <D:lockscope><D:exclusive/></D:lockscope>
  <D:locktype><D:write/></D:locktype>
  <D:owner><D:href>mailto:alice@example.com</D:href></D:owner>
</D:lockinfo>`

type msBody struct {
	XMLName   xml.Name     `xml:"DAV: multistatus"`
	Responses []msResponse `xml:"DAV: response"`
}

type msResponse struct {
	Href      string       `xml:"href"`
	Status    string       `xml:"status"`
	Propstats []msPropstat `xml:"propstat"`
}

type msPropstat struct {
	Status string `xml:"status"`
	Prop   struct {
		InnerXML string `xml:",innerxml"`
	} `xml:"prop"`
}

type testServer struct {
	t       *testing.T
	handler *Handler
	store   store.Store
}

func (s *testServer) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	res := httptest.NewRecorder()
	s.handler.ServeHTTP(res, req)

	return res
}

func (s *testServer) multistatus(res *httptest.ResponseRecorder) *msBody {
	s.t.Helper()

	require.Equal(s.t, http.StatusMultiStatus, res.Code, res.Body.String())

	var body msBody
	require.NoError(s.t, xml.Unmarshal(res.Body.Bytes(), &body), res.Body.String())

	return &body
}

func newTestServer(t *testing.T, s store.Store, funcs ...OptionFunc) *testServer {
	if s == nil {
		s = memory.NewStore(0)
	}

	return &testServer{
		t:       t,
		handler: New(s, funcs...),
		store:   s,
	}
}

func TestLockScenario(t *testing.T) {
	srv := newTestServer(t, nil)

	res := srv.do("MKCOL", "/docs", "", nil)
	require.Equal(t, http.StatusCreated, res.Code)

	res = srv.do(http.MethodPut, "/docs/a.txt", "hello", nil)
	require.Equal(t, http.StatusCreated, res.Code)

	etag := res.Header().Get("ETag")
	require.NotEmpty(t, etag)

	res = srv.do(http.MethodGet, "/docs/a.txt", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "hello", res.Body.String())
	assert.Equal(t, etag, res.Header().Get("ETag"))
	assert.Contains(t, res.Header().Get("Content-Disposition"), "a.txt")

	res = srv.do("LOCK", "/docs/a.txt", exclusiveLockInfo, map[string]string{"Timeout": "Second-3600"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Contains(t, res.Body.String(), "Second-3600")
	assert.Contains(t, res.Body.String(), "mailto:alice@example.com")

	lockToken := res.Header().Get("Lock-Token")
	require.True(t, strings.HasPrefix(lockToken, "<urn:uuid:"), lockToken)

	res = srv.do(http.MethodPut, "/docs/a.txt", "intruder", nil)
	assert.Equal(t, http.StatusLocked, res.Code)

	res = srv.do("LOCK", "/docs", exclusiveLockInfo, nil)
	assert.Equal(t, http.StatusLocked, res.Code)
	assert.Contains(t, res.Body.String(), "no-conflicting-lock")

	res = srv.do(http.MethodPut, "/docs/a.txt", "owner", map[string]string{"If": "(" + lockToken + ")"})
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = srv.do("UNLOCK", "/docs/a.txt", "", map[string]string{"Lock-Token": lockToken})
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = srv.do("UNLOCK", "/docs/a.txt", "", map[string]string{"Lock-Token": lockToken})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Contains(t, res.Body.String(), "lock-token-matches-request-uri")

	res = srv.do(http.MethodPut, "/docs/a.txt", "anyone", nil)
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = srv.do(http.MethodGet, "/docs/a.txt", "", nil)
	assert.Equal(t, "anyone", res.Body.String())
}

func TestLockRefresh(t *testing.T) {
	srv := newTestServer(t, nil)

	res := srv.do("LOCK", "/new.txt", exclusiveLockInfo, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	lockToken := res.Header().Get("Lock-Token")

	res = srv.do(http.MethodGet, "/new.txt", "", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "", res.Body.String())

	res = srv.do("LOCK", "/new.txt", "", map[string]string{"If": "(" + lockToken + ")", "Timeout": "Second-60"})
	assert.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Contains(t, res.Body.String(), "Second-60")

	res = srv.do("LOCK", "/new.txt", "", map[string]string{"If": "(<urn:uuid:unknown>)"})
	assert.Equal(t, http.StatusPreconditionFailed, res.Code)

	res = srv.do("LOCK", "/new.txt", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestSharedLocks(t *testing.T) {
	srv := newTestServer(t, nil)

	sharedLockInfo := strings.Replace(exclusiveLockInfo, "<D:exclusive/>", "<D:shared/>", 1)

	res := srv.do("LOCK", "/shared.txt", sharedLockInfo, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = srv.do("LOCK", "/shared.txt", sharedLockInfo, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = srv.do("LOCK", "/shared.txt", exclusiveLockInfo, nil)
	assert.Equal(t, http.StatusLocked, res.Code)
}

func TestPropfind(t *testing.T) {
	srv := newTestServer(t, nil)

	require.Equal(t, http.StatusCreated, srv.do("MKCOL", "/dir", "", nil).Code)
	require.Equal(t, http.StatusCreated, srv.do("MKCOL", "/dir/sub", "", nil).Code)
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/dir/a.txt", "a", nil).Code)
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/dir/sub/b.txt", "b", nil).Code)

	t.Run("DepthOne", func(t *testing.T) {
		body := srv.multistatus(srv.do("PROPFIND", "/dir", "", map[string]string{"Depth": "1"}))

		hrefs := make([]string, 0)
		for _, r := range body.Responses {
			hrefs = append(hrefs, r.Href)
		}

		assert.ElementsMatch(t, []string{"/dir/", "/dir/a.txt", "/dir/sub/"}, hrefs)
	})

	t.Run("DepthZero", func(t *testing.T) {
		body := srv.multistatus(srv.do("PROPFIND", "/dir/a.txt", "", map[string]string{"Depth": "0"}))

		require.Len(t, body.Responses, 1)
		require.Len(t, body.Responses[0].Propstats, 1)

		prop := body.Responses[0].Propstats[0].Prop.InnerXML
		assert.Contains(t, prop, "getetag")
		assert.Contains(t, prop, "<D:getcontentlength>1</D:getcontentlength>")
		assert.Contains(t, body.Responses[0].Propstats[0].Status, "200")
	})

	t.Run("DepthInfinity", func(t *testing.T) {
		for _, headers := range []map[string]string{{"Depth": "infinity"}, nil} {
			res := srv.do("PROPFIND", "/dir", "", headers)
			assert.Equal(t, http.StatusForbidden, res.Code)
			assert.Contains(t, res.Body.String(), "propfind-finite-depth")
		}
	})

	t.Run("UnknownProperty", func(t *testing.T) {
		request := `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:" xmlns:X="urn:example"><D:prop><D:getetag/><X:color/></D:prop></D:propfind>`

		body := srv.multistatus(srv.do("PROPFIND", "/dir/a.txt", request, map[string]string{"Depth": "0"}))

		require.Len(t, body.Responses, 1)
		require.Len(t, body.Responses[0].Propstats, 2)

		assert.Contains(t, body.Responses[0].Propstats[0].Status, "200")
		assert.Contains(t, body.Responses[0].Propstats[1].Status, "404")
		assert.Contains(t, body.Responses[0].Propstats[1].Prop.InnerXML, "color")
	})

	t.Run("Malformed", func(t *testing.T) {
		res := srv.do("PROPFIND", "/dir", "<D:propfind", map[string]string{"Depth": "0"})
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})

	t.Run("NotFound", func(t *testing.T) {
		res := srv.do("PROPFIND", "/missing", "", map[string]string{"Depth": "0"})
		assert.Equal(t, http.StatusNotFound, res.Code)
	})
}

func TestProppatch(t *testing.T) {
	srv := newTestServer(t, nil)

	require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/file.txt", "data", nil).Code)

	set := `<?xml version="1.0" encoding="utf-8"?>
<D:propertyupdate xmlns:D="DAV:" xmlns:X="urn:example">
  <D:set><D:prop><X:color>blue</X:color></D:prop></D:set>
</D:propertyupdate>`

	body := srv.multistatus(srv.do("PROPPATCH", "/file.txt", set, nil))
	require.Len(t, body.Responses, 1)
	assert.Contains(t, body.Responses[0].Propstats[0].Status, "200")

	find := `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:" xmlns:X="urn:example"><D:prop><X:color/></D:prop></D:propfind>`

	body = srv.multistatus(srv.do("PROPFIND", "/file.txt", find, map[string]string{"Depth": "0"}))
	require.Len(t, body.Responses, 1)
	assert.Contains(t, body.Responses[0].Propstats[0].Prop.InnerXML, "blue")

	protected := `<?xml version="1.0" encoding="utf-8"?>
<D:propertyupdate xmlns:D="DAV:" xmlns:X="urn:example">
  <D:set><D:prop><D:getetag>"forged"</D:getetag><X:color>red</X:color></D:prop></D:set>
</D:propertyupdate>`

	body = srv.multistatus(srv.do("PROPPATCH", "/file.txt", protected, nil))
	require.Len(t, body.Responses, 1)
	require.Len(t, body.Responses[0].Propstats, 2)
	assert.Contains(t, body.Responses[0].Propstats[0].Status, "403")
	assert.Contains(t, body.Responses[0].Propstats[1].Status, "424")

	// Nothing was applied
	body = srv.multistatus(srv.do("PROPFIND", "/file.txt", find, map[string]string{"Depth": "0"}))
	assert.Contains(t, body.Responses[0].Propstats[0].Prop.InnerXML, "blue")

	// Dead properties follow a moved resource
	res := srv.do("MOVE", "/file.txt", "", map[string]string{"Destination": "http://example.com/moved.txt"})
	require.Equal(t, http.StatusCreated, res.Code)

	body = srv.multistatus(srv.do("PROPFIND", "/moved.txt", find, map[string]string{"Depth": "0"}))
	assert.Contains(t, body.Responses[0].Propstats[0].Prop.InnerXML, "blue")
}

func TestDeadPropertyOrder(t *testing.T) {
	srv := newTestServer(t, nil)

	require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/file.txt", "data", nil).Code)

	set := `<?xml version="1.0" encoding="utf-8"?>
<D:propertyupdate xmlns:D="DAV:" xmlns:X="urn:example" xmlns:Y="urn:another">
  <D:set><D:prop><X:zeta>zeta-value</X:zeta><Y:beta>beta-value</Y:beta><X:alpha>alpha-value</X:alpha><X:mu>mu-value</X:mu></D:prop></D:set>
</D:propertyupdate>`

	srv.multistatus(srv.do("PROPPATCH", "/file.txt", set, nil))

	var first string

	for i := 0; i < 10; i++ {
		body := srv.multistatus(srv.do("PROPFIND", "/file.txt", "", map[string]string{"Depth": "0"}))
		require.Len(t, body.Responses, 1)

		prop := body.Responses[0].Propstats[0].Prop.InnerXML

		// Sorted by namespace then local name
		beta, alpha := strings.Index(prop, "beta-value"), strings.Index(prop, "alpha-value")
		mu, zeta := strings.Index(prop, "mu-value"), strings.Index(prop, "zeta-value")
		require.True(t, beta >= 0 && alpha >= 0 && mu >= 0 && zeta >= 0, prop)
		assert.True(t, beta < alpha && alpha < mu && mu < zeta, prop)

		if i == 0 {
			first = prop
			continue
		}

		assert.Equal(t, first, prop)
	}
}

func TestPut(t *testing.T) {
	srv := newTestServer(t, nil)

	res := srv.do(http.MethodPut, "/missing/file.txt", "data", nil)
	assert.Equal(t, http.StatusConflict, res.Code)

	res = srv.do(http.MethodPut, "/file.txt", "data", nil)
	require.Equal(t, http.StatusCreated, res.Code)
	etag := res.Header().Get("ETag")

	res = srv.do(http.MethodPut, "/file.txt", "other", map[string]string{"If-Match": `"not-the-etag"`})
	assert.Equal(t, http.StatusPreconditionFailed, res.Code)

	res = srv.do(http.MethodPut, "/file.txt", "other", map[string]string{"If-None-Match": "*"})
	assert.Equal(t, http.StatusPreconditionFailed, res.Code)

	res = srv.do(http.MethodPut, "/file.txt", "other", map[string]string{"If-Match": etag})
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.NotEqual(t, etag, res.Header().Get("ETag"))

	res = srv.do(http.MethodGet, "/file.txt", "", map[string]string{"If-None-Match": res.Header().Get("ETag")})
	assert.Equal(t, http.StatusNotModified, res.Code)

	res = srv.do(http.MethodPut, "/", "data", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, res.Code)

	res = srv.do(http.MethodPut, "/blob", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR", nil)
	require.Equal(t, http.StatusCreated, res.Code)

	info, err := srv.store.Stat(context.Background(), "/blob")
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.ContentType)
}

func TestMkcol(t *testing.T) {
	srv := newTestServer(t, nil)

	assert.Equal(t, http.StatusCreated, srv.do("MKCOL", "/dir", "", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, srv.do("MKCOL", "/dir", "", nil).Code)
	assert.Equal(t, http.StatusConflict, srv.do("MKCOL", "/missing/dir", "", nil).Code)
	assert.Equal(t, http.StatusUnsupportedMediaType, srv.do("MKCOL", "/other", "<body/>", nil).Code)
}

func TestDelete(t *testing.T) {
	srv := newTestServer(t, nil)

	require.Equal(t, http.StatusCreated, srv.do("MKCOL", "/dir", "", nil).Code)
	require.Equal(t, http.StatusCreated, srv.do("MKCOL", "/dir/sub", "", nil).Code)
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/dir/sub/file.txt", "data", nil).Code)

	assert.Equal(t, http.StatusBadRequest, srv.do(http.MethodDelete, "/dir", "", map[string]string{"Depth": "0"}).Code)
	assert.Equal(t, http.StatusNoContent, srv.do(http.MethodDelete, "/dir", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, srv.do(http.MethodDelete, "/dir", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/dir/sub/file.txt", "", nil).Code)
}

func TestPartialDelete(t *testing.T) {
	var logged error

	s := &failingStore{basicStore: basicStore{memory.NewStore(0)}, deletes: map[string]bool{"/dir/sub/b.txt": true, "/single.txt": true}}
	srv := newTestServer(t, s, WithLogger(func(r *http.Request, err error) {
		logged = err
	}))

	require.Equal(t, http.StatusCreated, srv.do("MKCOL", "/dir", "", nil).Code)
	require.Equal(t, http.StatusCreated, srv.do("MKCOL", "/dir/sub", "", nil).Code)
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/dir/a.txt", "a", nil).Code)
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/dir/sub/b.txt", "b", nil).Code)
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/single.txt", "s", nil).Code)

	body := srv.multistatus(srv.do(http.MethodDelete, "/dir", "", nil))
	require.Len(t, body.Responses, 1)
	assert.Equal(t, "/dir/sub/b.txt", body.Responses[0].Href)
	assert.Contains(t, body.Responses[0].Status, "503")

	// Ancestors of the failed resource are kept, its siblings are gone
	assert.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/dir/a.txt", "", nil).Code)
	assert.Equal(t, "b", srv.do(http.MethodGet, "/dir/sub/b.txt", "", nil).Body.String())
	assert.Equal(t, http.StatusMultiStatus, srv.do("PROPFIND", "/dir/sub", "", map[string]string{"Depth": "0"}).Code)

	// A failure of the target itself is answered and logged with its own status
	res := srv.do(http.MethodDelete, "/single.txt", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	require.Error(t, logged)
	assert.Equal(t, http.StatusServiceUnavailable, statusFromError(logged))
}

func TestDeleteLockedDescendant(t *testing.T) {
	srv := newTestServer(t, nil)

	require.Equal(t, http.StatusCreated, srv.do("MKCOL", "/dir", "", nil).Code)
	require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/dir/file.txt", "data", nil).Code)

	res := srv.do("LOCK", "/dir/file.txt", exclusiveLockInfo, nil)
	require.Equal(t, http.StatusOK, res.Code)

	assert.Equal(t, http.StatusLocked, srv.do(http.MethodDelete, "/dir", "", nil).Code)

	lockToken := res.Header().Get("Lock-Token")
	assert.Equal(t, http.StatusNoContent, srv.do(http.MethodDelete, "/dir", "", map[string]string{"If": "(" + lockToken + ")"}).Code)

	// Locks of deleted resources are gone
	assert.Equal(t, http.StatusConflict, srv.do("UNLOCK", "/dir/file.txt", "", map[string]string{"Lock-Token": lockToken}).Code)
}

func TestCopyMove(t *testing.T) {
	setup := func(t *testing.T, s store.Store) *testServer {
		srv := newTestServer(t, s)

		require.Equal(t, http.StatusCreated, srv.do("MKCOL", "/src", "", nil).Code)
		require.Equal(t, http.StatusCreated, srv.do("MKCOL", "/src/sub", "", nil).Code)
		require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/src/a.txt", "a", nil).Code)
		require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/src/sub/b.txt", "b", nil).Code)

		return srv
	}

	t.Run("CopyCollection", func(t *testing.T) {
		srv := setup(t, nil)

		res := srv.do("COPY", "/src", "", map[string]string{"Destination": "/dst"})
		require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

		assert.Equal(t, "b", srv.do(http.MethodGet, "/dst/sub/b.txt", "", nil).Body.String())
		assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/src/sub/b.txt", "", nil).Code)
	})

	t.Run("ShallowCopy", func(t *testing.T) {
		srv := setup(t, nil)

		res := srv.do("COPY", "/src", "", map[string]string{"Destination": "/dst", "Depth": "0"})
		require.Equal(t, http.StatusCreated, res.Code)

		body := srv.multistatus(srv.do("PROPFIND", "/dst", "", map[string]string{"Depth": "1"}))
		assert.Len(t, body.Responses, 1)
	})

	t.Run("NoOverwrite", func(t *testing.T) {
		srv := setup(t, nil)

		require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/existing.txt", "x", nil).Code)

		res := srv.do("COPY", "/src/a.txt", "", map[string]string{"Destination": "/existing.txt", "Overwrite": "F"})
		assert.Equal(t, http.StatusPreconditionFailed, res.Code)

		res = srv.do("COPY", "/src/a.txt", "", map[string]string{"Destination": "/existing.txt"})
		assert.Equal(t, http.StatusNoContent, res.Code)
		assert.Equal(t, "a", srv.do(http.MethodGet, "/existing.txt", "", nil).Body.String())
	})

	t.Run("InvalidDestinations", func(t *testing.T) {
		srv := setup(t, nil)

		assert.Equal(t, http.StatusBadRequest, srv.do("MOVE", "/src", "", nil).Code)
		assert.Equal(t, http.StatusForbidden, srv.do("MOVE", "/src", "", map[string]string{"Destination": "/src"}).Code)
		assert.Equal(t, http.StatusForbidden, srv.do("MOVE", "/src", "", map[string]string{"Destination": "/src/sub/inner"}).Code)
		assert.Equal(t, http.StatusConflict, srv.do("MOVE", "/src", "", map[string]string{"Destination": "/missing/dst"}).Code)
		assert.Equal(t, http.StatusBadGateway, srv.do("MOVE", "/src", "", map[string]string{"Destination": "http://elsewhere.org/dst"}).Code)
		assert.Equal(t, http.StatusBadRequest, srv.do("MOVE", "/src", "", map[string]string{"Destination": "/dst", "Depth": "0"}).Code)

		// Overwriting an ancestor of the source is refused and nothing is lost
		for _, method := range []string{"MOVE", "COPY"} {
			assert.Equal(t, http.StatusForbidden, srv.do(method, "/src/sub/b.txt", "", map[string]string{"Destination": "/src/sub"}).Code, method)
			assert.Equal(t, http.StatusForbidden, srv.do(method, "/src/sub", "", map[string]string{"Destination": "/src"}).Code, method)
		}

		assert.Equal(t, "b", srv.do(http.MethodGet, "/src/sub/b.txt", "", nil).Body.String())
		assert.Equal(t, "a", srv.do(http.MethodGet, "/src/a.txt", "", nil).Body.String())
	})

	t.Run("MoveCollection", func(t *testing.T) {
		srv := setup(t, nil)

		res := srv.do("MOVE", "/src", "", map[string]string{"Destination": "http://example.com/dst"})
		require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

		assert.Equal(t, "b", srv.do(http.MethodGet, "/dst/sub/b.txt", "", nil).Body.String())
		assert.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/src/a.txt", "", nil).Code)
	})

	t.Run("MoveWithoutTreeMover", func(t *testing.T) {
		srv := setup(t, &basicStore{memory.NewStore(0)})

		res := srv.do("MOVE", "/src", "", map[string]string{"Destination": "/dst"})
		require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

		assert.Equal(t, "a", srv.do(http.MethodGet, "/dst/a.txt", "", nil).Body.String())
		assert.Equal(t, http.StatusNotFound, srv.do("PROPFIND", "/src", "", map[string]string{"Depth": "0"}).Code)
	})

	t.Run("PartialMove", func(t *testing.T) {
		s := &failingStore{basicStore: basicStore{memory.NewStore(0)}, copies: map[string]bool{"/src/sub/b.txt": true}}
		srv := setup(t, s)

		body := srv.multistatus(srv.do("MOVE", "/src", "", map[string]string{"Destination": "/dst"}))
		require.Len(t, body.Responses, 1)
		assert.Equal(t, "/dst/sub/b.txt", body.Responses[0].Href)
		assert.Contains(t, body.Responses[0].Status, "507")

		// Sources are kept since their copy is incomplete
		assert.Equal(t, "a", srv.do(http.MethodGet, "/src/a.txt", "", nil).Body.String())
		assert.Equal(t, "b", srv.do(http.MethodGet, "/src/sub/b.txt", "", nil).Body.String())
		assert.Equal(t, "a", srv.do(http.MethodGet, "/dst/a.txt", "", nil).Body.String())
		assert.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/dst/sub/b.txt", "", nil).Code)
	})

	t.Run("PartialCopy", func(t *testing.T) {
		s := &failingStore{basicStore: basicStore{memory.NewStore(0)}, copies: map[string]bool{"/src/a.txt": true}}
		srv := setup(t, s)

		body := srv.multistatus(srv.do("COPY", "/src", "", map[string]string{"Destination": "/dst"}))
		require.Len(t, body.Responses, 1)
		assert.Equal(t, "/dst/a.txt", body.Responses[0].Href)
		assert.Contains(t, body.Responses[0].Status, "507")

		assert.Equal(t, "b", srv.do(http.MethodGet, "/dst/sub/b.txt", "", nil).Body.String())
		assert.Equal(t, "a", srv.do(http.MethodGet, "/src/a.txt", "", nil).Body.String())
	})

	t.Run("LockedDestination", func(t *testing.T) {
		srv := setup(t, nil)

		require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/locked.txt", "x", nil).Code)

		res := srv.do("LOCK", "/locked.txt", exclusiveLockInfo, nil)
		require.Equal(t, http.StatusOK, res.Code)

		lockToken := res.Header().Get("Lock-Token")

		for _, method := range []string{"COPY", "MOVE"} {
			assert.Equal(t, http.StatusLocked, srv.do(method, "/src/a.txt", "", map[string]string{"Destination": "/locked.txt"}).Code, method)
		}

		res = srv.do("COPY", "/src/a.txt", "", map[string]string{"Destination": "/locked.txt", "If": "(" + lockToken + ")"})
		assert.Equal(t, http.StatusNoContent, res.Code, res.Body.String())
		assert.Equal(t, "a", srv.do(http.MethodGet, "/locked.txt", "", nil).Body.String())
	})

	t.Run("MoveLockedSource", func(t *testing.T) {
		srv := setup(t, nil)

		res := srv.do("LOCK", "/src/sub/b.txt", exclusiveLockInfo, nil)
		require.Equal(t, http.StatusOK, res.Code)

		assert.Equal(t, http.StatusLocked, srv.do("MOVE", "/src", "", map[string]string{"Destination": "/dst"}).Code)
	})
}

func TestOptions(t *testing.T) {
	srv := newTestServer(t, nil, WithAuthorizer(authz.NewRuleAuthorizer(nil)))

	res := srv.do(http.MethodOptions, "/", "", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "1, 2", res.Header().Get("DAV"))
	assert.Equal(t, "DAV", res.Header().Get("MS-Author-Via"))
	assert.Contains(t, res.Header().Get("Allow"), "PROPFIND")
}

func TestUnknownMethod(t *testing.T) {
	srv := newTestServer(t, nil)

	res := srv.do("PATCH", "/", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, res.Code)
	assert.Contains(t, res.Header().Get("Allow"), "MKCOL")
}

func TestBadPath(t *testing.T) {
	srv := newTestServer(t, nil)

	res := srv.do(http.MethodGet, "/a/%2e%2e/b", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = srv.do(http.MethodGet, "/a%5Cb", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestPrefix(t *testing.T) {
	srv := newTestServer(t, nil, WithPrefix("/dav/"))

	require.Equal(t, http.StatusCreated, srv.do(http.MethodPut, "/dav/file.txt", "data", nil).Code)
	assert.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/file.txt", "", nil).Code)

	body := srv.multistatus(srv.do("PROPFIND", "/dav/", "", map[string]string{"Depth": "1"}))

	hrefs := make([]string, 0)
	for _, r := range body.Responses {
		hrefs = append(hrefs, r.Href)
	}

	assert.ElementsMatch(t, []string{"/dav/", "/dav/file.txt"}, hrefs)
}

func TestAuthorization(t *testing.T) {
	reader := authz.NewUser("reader", nil, nil, readOnlyRule{})

	srv := newTestServer(t, nil, WithAuthorizer(authz.NewRuleAuthorizer(nil)))

	res := srv.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	ctx := authz.WithContextUser(context.Background(), reader)

	req := httptest.NewRequest("PROPFIND", "/", nil).WithContext(ctx)
	req.Header.Set("Depth", "0")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMultiStatus, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/file.txt", strings.NewReader("data")).WithContext(ctx)
	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := newTestServer(t, nil, WithMetrics(NewMetrics(reg)))

	srv.do(http.MethodPut, "/file.txt", "data", nil)
	srv.do(http.MethodGet, "/missing", "", nil)

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "remotedav_requests_total" {
			continue
		}

		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, label := range metric.GetLabel() {
				labels[label.GetName()] = label.GetValue()
			}

			counts[labels["method"]+" "+labels["status"]] += metric.GetCounter().GetValue()
		}
	}

	assert.Equal(t, float64(1), counts["PUT 201"])
	assert.Equal(t, float64(1), counts["GET 404"])
}

type readOnlyRule struct{}

func (readOnlyRule) Exec(env authz.Env) (bool, error) {
	switch env["method"] {
	case "GET", "HEAD", "PROPFIND":
		return true, nil
	default:
		return false, nil
	}
}

// basicStore hides the optional capabilities of its backend.
type basicStore struct {
	store.Store
}

// failingStore refuses to copy or delete the given resources.
type failingStore struct {
	basicStore
	copies  map[string]bool
	deletes map[string]bool
}

func (s *failingStore) Copy(ctx context.Context, from, to string) error {
	if s.copies[from] {
		return errors.Wrapf(store.ErrInsufficientStorage, "no room left for '%s'", to)
	}

	return s.basicStore.Copy(ctx, from, to)
}

func (s *failingStore) Delete(ctx context.Context, name string) error {
	if s.deletes[name] {
		return errors.Wrapf(store.ErrUnavailable, "could not delete '%s'", name)
	}

	return s.basicStore.Delete(ctx, name)
}
