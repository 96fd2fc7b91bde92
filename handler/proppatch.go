package handler

import (
	"context"
	"encoding/xml"
	"net/http"

	"github.com/bornholm/remotedav/multistatus"
	"github.com/pkg/errors"
	"golang.org/x/net/webdav"
)

func (h *Handler) handleProppatch(ctx context.Context, ex *exchange) (int, error) {
	if err := h.authorize(ctx, ex, ""); err != nil {
		return statusFromError(err), err
	}

	res, err := h.resolver.Resolve(ctx, ex.path)
	if err != nil {
		return statusFromError(err), err
	}

	if err := h.checkLocks(ctx, ex, false, ex.path); err != nil {
		return statusFromError(err), err
	}

	patches, err := multistatus.DecodeProppatch(ex.r.Body)
	if err != nil {
		return statusFromError(err), errors.WithStack(err)
	}

	response := multistatus.Response{Href: h.href(res)}

	protected := make([]webdav.Property, 0)
	dependent := make([]webdav.Property, 0)

	for _, patch := range patches {
		for _, prop := range patch.Props {
			if isLiveProp(prop.XMLName) {
				protected = append(protected, webdav.Property{XMLName: prop.XMLName})
			} else {
				dependent = append(dependent, webdav.Property{XMLName: prop.XMLName})
			}
		}
	}

	if len(protected) > 0 {
		// Nothing is applied when a single instruction fails
		response.Propstats = append(response.Propstats, multistatus.Propstat{
			Props:       protected,
			Status:      http.StatusForbidden,
			Description: "cannot modify protected property",
		})

		if len(dependent) > 0 {
			response.Propstats = append(response.Propstats, multistatus.Propstat{
				Props:  dependent,
				Status: http.StatusFailedDependency,
			})
		}

		response.Error = "cannot-modify-protected-property"

		return h.writeMultistatus(ex, []multistatus.Response{response})
	}

	propstats, err := h.props.Patch(ctx, res.Path, patches)
	if err != nil {
		return statusFromError(err), errors.WithStack(err)
	}

	ex.advance(StageExecuted)

	for _, ps := range propstats {
		response.Propstats = append(response.Propstats, multistatus.Propstat{
			Props:       ps.Props,
			Status:      ps.Status,
			Description: ps.ResponseDescription,
		})
	}

	if len(response.Propstats) == 0 {
		response.Propstats = []multistatus.Propstat{{Status: http.StatusOK}}
	}

	return h.writeMultistatus(ex, []multistatus.Response{response})
}

func findProperty(props []webdav.Property, name xml.Name) (webdav.Property, bool) {
	for _, p := range props {
		if p.XMLName == name {
			return p, true
		}
	}

	return webdav.Property{}, false
}
