package multistatus

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/bornholm/remotedav/lock"
	"github.com/pkg/errors"
	"golang.org/x/net/webdav"
)

// SupportedLock is the inner XML of the DAV:supportedlock property.
const SupportedLock = `<D:lockentry><D:lockscope><D:exclusive/></D:lockscope><D:locktype><D:write/></D:locktype></D:lockentry>` +
	`<D:lockentry><D:lockscope><D:shared/></D:lockscope><D:locktype><D:write/></D:locktype></D:lockentry>`

// ActiveLocks renders the DAV:activelock elements of the given locks. Lock
// roots are prefixed with hrefPrefix.
func ActiveLocks(locks []*lock.Lock, hrefPrefix string, now time.Time) []byte {
	var buf bytes.Buffer

	for _, l := range locks {
		buf.WriteString(`<D:activelock><D:locktype><D:write/></D:locktype>`)
		fmt.Fprintf(&buf, `<D:lockscope><D:%s/></D:lockscope>`, l.Scope)
		fmt.Fprintf(&buf, `<D:depth>%s</D:depth>`, l.Depth)

		if l.Owner != "" {
			fmt.Fprintf(&buf, `<D:owner>%s</D:owner>`, l.Owner)
		}

		fmt.Fprintf(&buf, `<D:timeout>%s</D:timeout>`, FormatTimeout(l.Remaining(now)))
		fmt.Fprintf(&buf, `<D:locktoken><D:href>%s</D:href></D:locktoken>`, TextValue(l.Token))
		fmt.Fprintf(&buf, `<D:lockroot><D:href>%s</D:href></D:lockroot>`, TextValue(EscapeHref(hrefPrefix+l.Root)))
		buf.WriteString(`</D:activelock>`)
	}

	return buf.Bytes()
}

// LockDiscovery returns the DAV:lockdiscovery live property.
func LockDiscovery(locks []*lock.Lock, hrefPrefix string, now time.Time) webdav.Property {
	return webdav.Property{
		XMLName:  Name("lockdiscovery"),
		InnerXML: ActiveLocks(locks, hrefPrefix, now),
	}
}

// EncodeLockDiscovery writes the body of a LOCK response.
func EncodeLockDiscovery(w io.Writer, locks []*lock.Lock, hrefPrefix string, now time.Time) error {
	_, err := fmt.Fprintf(w, `%s<D:prop xmlns:D="DAV:"><D:lockdiscovery>%s</D:lockdiscovery></D:prop>`, xml.Header, ActiveLocks(locks, hrefPrefix, now))
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// FormatTimeout formats a lock timeout, zero meaning infinite.
func FormatTimeout(d time.Duration) string {
	if d <= 0 {
		return "Infinite"
	}

	return fmt.Sprintf("Second-%d", int64(d/time.Second))
}
