package multistatus

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/bornholm/remotedav/lock"
	"github.com/pkg/errors"
	"golang.org/x/net/webdav"
)

// MaxBodySize bounds the size of the XML bodies accepted by the decoders.
const MaxBodySize = 1 << 20

type Propfind struct {
	AllProp  bool
	PropName bool
	// Prop lists the requested properties
	Prop []xml.Name
	// Include lists extra properties requested along allprop
	Include []xml.Name
}

type propfindXML struct {
	XMLName  xml.Name  `xml:"DAV: propfind"`
	AllProp  *struct{} `xml:"DAV: allprop"`
	PropName *struct{} `xml:"DAV: propname"`
	Prop     *nameList `xml:"DAV: prop"`
	Include  *nameList `xml:"DAV: include"`
}

// nameList collects the names of the child elements, ignoring their content.
type nameList []xml.Name

func (n *nameList) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		t, err := d.Token()
		if err != nil {
			return err
		}

		switch elem := t.(type) {
		case xml.EndElement:
			return nil
		case xml.StartElement:
			*n = append(*n, elem.Name)
			if err := d.Skip(); err != nil {
				return err
			}
		}
	}
}

// DecodePropfind parses a PROPFIND body. An empty body requests all
// properties.
func DecodePropfind(r io.Reader) (*Propfind, error) {
	data, empty, err := readBody(r)
	if err != nil {
		return nil, err
	}

	if empty {
		return &Propfind{AllProp: true}, nil
	}

	var pf propfindXML
	if err := xml.Unmarshal(data, &pf); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	set := 0
	propfind := &Propfind{}

	if pf.AllProp != nil {
		propfind.AllProp = true
		set++
	}

	if pf.PropName != nil {
		propfind.PropName = true
		set++
	}

	if pf.Prop != nil {
		if len(*pf.Prop) == 0 {
			return nil, errors.Wrap(ErrMalformed, "empty prop element")
		}

		propfind.Prop = *pf.Prop
		set++
	}

	if set != 1 {
		return nil, errors.Wrap(ErrMalformed, "propfind expects exactly one of allprop, propname or prop")
	}

	if pf.Include != nil {
		if !propfind.AllProp {
			return nil, errors.Wrap(ErrMalformed, "include is only allowed with allprop")
		}

		propfind.Include = *pf.Include
	}

	return propfind, nil
}

type proppatchXML struct {
	XMLName xml.Name           `xml:"DAV: propertyupdate"`
	Items   []proppatchItemXML `xml:",any"`
}

type proppatchItemXML struct {
	XMLName xml.Name
	Prop    propertyList `xml:"DAV: prop"`
}

type propertyList []webdav.Property

func (l *propertyList) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		t, err := d.Token()
		if err != nil {
			return err
		}

		switch elem := t.(type) {
		case xml.EndElement:
			return nil
		case xml.StartElement:
			p := webdav.Property{}
			if err := d.DecodeElement(&p, &elem); err != nil {
				return err
			}

			*l = append(*l, p)
		}
	}
}

// DecodeProppatch parses a PROPPATCH body into its ordered instructions.
func DecodeProppatch(r io.Reader) ([]webdav.Proppatch, error) {
	data, empty, err := readBody(r)
	if err != nil {
		return nil, err
	}

	if empty {
		return nil, errors.Wrap(ErrMalformed, "empty propertyupdate body")
	}

	var pu proppatchXML
	if err := xml.Unmarshal(data, &pu); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	patches := make([]webdav.Proppatch, 0, len(pu.Items))

	for _, item := range pu.Items {
		if item.XMLName.Space != nsDAV {
			continue
		}

		var remove bool

		switch item.XMLName.Local {
		case "set":
			remove = false
		case "remove":
			remove = true
			for _, p := range item.Prop {
				if len(bytes.TrimSpace(p.InnerXML)) > 0 {
					return nil, errors.Wrap(ErrMalformed, "remove instructions cannot carry values")
				}
			}
		default:
			continue
		}

		if len(item.Prop) == 0 {
			return nil, errors.Wrapf(ErrMalformed, "empty %s instruction", item.XMLName.Local)
		}

		patches = append(patches, webdav.Proppatch{Remove: remove, Props: item.Prop})
	}

	if len(patches) == 0 {
		return nil, errors.Wrap(ErrMalformed, "propertyupdate without instruction")
	}

	return patches, nil
}

type LockInfo struct {
	Scope lock.Scope
	// Owner is the raw inner XML of the DAV:owner element
	Owner string
}

type lockInfoXML struct {
	XMLName   xml.Name  `xml:"DAV: lockinfo"`
	Exclusive *struct{} `xml:"lockscope>exclusive"`
	Shared    *struct{} `xml:"lockscope>shared"`
	Write     *struct{} `xml:"locktype>write"`
	Owner     ownerXML  `xml:"owner"`
}

type ownerXML struct {
	InnerXML string `xml:",innerxml"`
}

// DecodeLockInfo parses a LOCK body. It returns nil for an empty body, which
// denotes a lock refresh.
func DecodeLockInfo(r io.Reader) (*LockInfo, error) {
	data, empty, err := readBody(r)
	if err != nil {
		return nil, err
	}

	if empty {
		return nil, nil
	}

	var li lockInfoXML
	if err := xml.Unmarshal(data, &li); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	if li.Write == nil {
		return nil, errors.Wrap(ErrMalformed, "only write locks are supported")
	}

	info := &LockInfo{
		Owner: li.Owner.InnerXML,
	}

	switch {
	case li.Exclusive != nil && li.Shared == nil:
		info.Scope = lock.ScopeExclusive
	case li.Shared != nil && li.Exclusive == nil:
		info.Scope = lock.ScopeShared
	default:
		return nil, errors.Wrap(ErrMalformed, "lockinfo expects exactly one lock scope")
	}

	return info, nil
}

func readBody(r io.Reader) ([]byte, bool, error) {
	if r == nil {
		return nil, true, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxBodySize+1))
	if err != nil {
		return nil, false, errors.WithStack(err)
	}

	if len(data) > MaxBodySize {
		return nil, false, errors.Wrap(ErrMalformed, "body too large")
	}

	return data, len(bytes.TrimSpace(data)) == 0, nil
}
