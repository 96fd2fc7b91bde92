package handler

import (
	"context"
	"net/http"

	"github.com/bornholm/remotedav/multistatus"
	"github.com/bornholm/remotedav/resolver"
	"github.com/pkg/errors"
	"golang.org/x/net/webdav"
)

func (h *Handler) handlePropfind(ctx context.Context, ex *exchange) (int, error) {
	depth, err := resolver.ParseDepth(ex.r.Header.Get("Depth"), resolver.DepthInfinity)
	if err != nil {
		return statusFromError(err), errors.WithStack(err)
	}

	if err := h.authorize(ctx, ex, ""); err != nil {
		return statusFromError(err), err
	}

	if depth == resolver.DepthInfinity {
		ex.w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		ex.w.WriteHeader(http.StatusForbidden)

		if err := multistatus.EncodeError(ex.w, "propfind-finite-depth"); err != nil {
			return 0, errors.WithStack(err)
		}

		return 0, errors.WithStack(resolver.ErrDepthForbidden)
	}

	propfind, err := multistatus.DecodePropfind(ex.r.Body)
	if err != nil {
		return statusFromError(err), errors.WithStack(err)
	}

	res, err := h.resolver.Resolve(ctx, ex.path)
	if err != nil {
		return statusFromError(err), err
	}

	resources, err := h.resolver.Expand(ctx, res, depth)
	if err != nil {
		return statusFromError(err), errors.WithStack(err)
	}

	ex.advance(StageLockChecked)

	mw := multistatus.NewWriter(ex.w)

	for _, current := range resources {
		response, err := h.propfindResponse(ctx, current, propfind)
		if err != nil {
			if !mw.Started() {
				return statusFromError(err), errors.WithStack(err)
			}

			return 0, errors.WithStack(err)
		}

		if !mw.Started() {
			ex.w.Header().Set("Content-Type", "application/xml; charset=utf-8")
			ex.w.WriteHeader(http.StatusMultiStatus)
		}

		if err := mw.Write(*response); err != nil {
			return 0, errors.WithStack(err)
		}
	}

	ex.advance(StageExecuted)

	if err := mw.Close(); err != nil {
		return 0, errors.WithStack(err)
	}

	return 0, nil
}

func (h *Handler) propfindResponse(ctx context.Context, res *resolver.Resource, propfind *multistatus.Propfind) (*multistatus.Response, error) {
	props, err := h.properties(ctx, res)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	response := &multistatus.Response{
		Href: h.href(res),
	}

	switch {
	case propfind.PropName:
		names := make([]webdav.Property, 0, len(props))
		for _, p := range props {
			names = append(names, webdav.Property{XMLName: p.XMLName})
		}

		response.Propstats = []multistatus.Propstat{{Props: names, Status: http.StatusOK}}

	case propfind.AllProp:
		response.Propstats = []multistatus.Propstat{{Props: props, Status: http.StatusOK}}

	default:
		found := make([]webdav.Property, 0, len(propfind.Prop))
		missing := make([]webdav.Property, 0)

		for _, name := range propfind.Prop {
			prop, exists := findProperty(props, name)
			if exists {
				found = append(found, prop)
			} else {
				missing = append(missing, webdav.Property{XMLName: name})
			}
		}

		if len(found) > 0 {
			response.Propstats = append(response.Propstats, multistatus.Propstat{Props: found, Status: http.StatusOK})
		}

		if len(missing) > 0 {
			response.Propstats = append(response.Propstats, multistatus.Propstat{Props: missing, Status: http.StatusNotFound})
		}
	}

	if len(response.Propstats) == 0 {
		response.Propstats = []multistatus.Propstat{{Status: http.StatusOK}}
	}

	return response, nil
}
