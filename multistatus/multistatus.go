// Package multistatus encodes and decodes the XML bodies exchanged by WebDAV
// methods.
package multistatus

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/webdav"
)

const (
	nsDAV    = "DAV:"
	prefixed = "D:"
)

var ErrMalformed = errors.New("malformed xml body")

// Response is a single DAV:response element. Either Propstats or Status is
// set.
type Response struct {
	// Href is the unescaped path of the resource
	Href      string
	Propstats []Propstat
	Status    int
	// Error is the local name of a DAV: precondition element
	Error       string
	Description string
}

type Propstat struct {
	Props       []webdav.Property
	Status      int
	Description string
}

// Writer streams a DAV:multistatus document.
type Writer struct {
	w       io.Writer
	enc     *xml.Encoder
	started bool
	closed  bool
}

// Write appends a response, emitting the document prologue on first call.
func (mw *Writer) Write(r Response) error {
	if mw.closed {
		return errors.New("multistatus writer closed")
	}

	if err := mw.start(); err != nil {
		return errors.WithStack(err)
	}

	if err := mw.writeResponse(r); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Close terminates the document.
func (mw *Writer) Close() error {
	if mw.closed {
		return nil
	}

	if err := mw.start(); err != nil {
		return errors.WithStack(err)
	}

	mw.closed = true

	if err := mw.enc.EncodeToken(xml.EndElement{Name: davName("multistatus")}); err != nil {
		return errors.WithStack(err)
	}

	if err := mw.enc.Flush(); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Started reports whether anything has been written yet.
func (mw *Writer) Started() bool {
	return mw.started
}

func (mw *Writer) start() error {
	if mw.started {
		return nil
	}

	mw.started = true

	if _, err := io.WriteString(mw.w, xml.Header); err != nil {
		return err
	}

	return mw.enc.EncodeToken(xml.StartElement{
		Name: davName("multistatus"),
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns:D"}, Value: nsDAV}},
	})
}

func (mw *Writer) writeResponse(r Response) error {
	if err := mw.open("response"); err != nil {
		return err
	}

	if err := mw.text("href", EscapeHref(r.Href)); err != nil {
		return err
	}

	if len(r.Propstats) == 0 {
		status := r.Status
		if status == 0 {
			status = http.StatusOK
		}

		if err := mw.text("status", StatusLine(status)); err != nil {
			return err
		}
	}

	for _, ps := range r.Propstats {
		if err := mw.writePropstat(ps); err != nil {
			return err
		}
	}

	if r.Error != "" {
		if err := mw.condition(r.Error); err != nil {
			return err
		}
	}

	if r.Description != "" {
		if err := mw.text("responsedescription", r.Description); err != nil {
			return err
		}
	}

	return mw.close("response")
}

func (mw *Writer) writePropstat(ps Propstat) error {
	if err := mw.open("propstat"); err != nil {
		return err
	}

	if err := mw.open("prop"); err != nil {
		return err
	}

	for _, p := range ps.Props {
		if err := mw.writeProperty(p); err != nil {
			return err
		}
	}

	if err := mw.close("prop"); err != nil {
		return err
	}

	if err := mw.text("status", StatusLine(ps.Status)); err != nil {
		return err
	}

	if ps.Description != "" {
		if err := mw.text("responsedescription", ps.Description); err != nil {
			return err
		}
	}

	return mw.close("propstat")
}

func (mw *Writer) writeProperty(p webdav.Property) error {
	start := xml.StartElement{Name: elementName(p.XMLName)}

	if p.Lang != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "xml:lang"}, Value: p.Lang})
	}

	if err := mw.enc.EncodeToken(start); err != nil {
		return err
	}

	if len(p.InnerXML) > 0 {
		// Inner XML is written verbatim once the encoder buffer is drained
		if err := mw.enc.Flush(); err != nil {
			return err
		}

		if _, err := mw.w.Write(p.InnerXML); err != nil {
			return err
		}
	}

	return mw.enc.EncodeToken(start.End())
}

func (mw *Writer) condition(local string) error {
	if err := mw.open("error"); err != nil {
		return err
	}

	if err := mw.open(local); err != nil {
		return err
	}

	if err := mw.close(local); err != nil {
		return err
	}

	return mw.close("error")
}

func (mw *Writer) open(local string) error {
	return mw.enc.EncodeToken(xml.StartElement{Name: davName(local)})
}

func (mw *Writer) close(local string) error {
	return mw.enc.EncodeToken(xml.EndElement{Name: davName(local)})
}

func (mw *Writer) text(local, value string) error {
	if err := mw.open(local); err != nil {
		return err
	}

	if err := mw.enc.EncodeToken(xml.CharData(value)); err != nil {
		return err
	}

	return mw.close(local)
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:   w,
		enc: xml.NewEncoder(w),
	}
}

// Encode writes a complete multistatus document.
func Encode(w io.Writer, responses []Response) error {
	mw := NewWriter(w)

	for _, r := range responses {
		if err := mw.Write(r); err != nil {
			return err
		}
	}

	return mw.Close()
}

// EncodeError writes a DAV:error document naming the given precondition.
func EncodeError(w io.Writer, condition string) error {
	_, err := fmt.Fprintf(w, "%s<D:error xmlns:D=\"DAV:\"><D:%s/></D:error>", xml.Header, condition)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// EscapeHref percent-encodes every segment of a path.
func EscapeHref(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return strings.Join(segments, "/")
}

// StatusLine returns the HTTP status line used in DAV:status elements.
func StatusLine(status int) string {
	return fmt.Sprintf("HTTP/1.1 %d %s", status, http.StatusText(status))
}

// TextValue escapes a string for use as the inner XML of a property.
func TextValue(s string) []byte {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.Bytes()
}

// Name returns the name of a property in the DAV: namespace.
func Name(local string) xml.Name {
	return xml.Name{Space: nsDAV, Local: local}
}

func davName(local string) xml.Name {
	return xml.Name{Local: prefixed + local}
}

func elementName(name xml.Name) xml.Name {
	if name.Space == nsDAV {
		return davName(name.Local)
	}

	return name
}
