package pay2wash

import (
	"fmt"
	"washmon-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Session holds everything scraped off the authenticated landing page.
// It stays valid for as long as the portal keeps the session cookie
// alive and is discarded on logout.
type Session struct {
	// CSRFToken is the token the login form was submitted with.
	CSRFToken string
	// UserToken is the portal's opaque user identifier, when exposed.
	UserToken string
	// Location identifies which site's machines to poll.
	Location string
	// MachineNames maps portal machine ids to their human labels
	// (e.g. "476" -> "W2"). May be empty when the landing page carries
	// no machine list.
	MachineNames map[string]string
}

func extractSession(doc *goquery.Document, csrfToken string) (*Session, error) {
	location := htmlutil.ElementValue(doc, "#location")
	if location == "" {
		return nil, fmt.Errorf("%w: GET /home", ErrMissingLocationID)
	}

	return &Session{
		CSRFToken:    csrfToken,
		UserToken:    htmlutil.MetaContent(doc, "user-token"),
		Location:     location,
		MachineNames: machineNames(doc),
	}, nil
}

// machineNames collects the machine id -> label mapping embedded in the
// landing page markup: each input.machine_pk holds an id and its parent
// holds the label in a span.js-reservation.
func machineNames(doc *goquery.Document) map[string]string {
	out := map[string]string{}
	doc.Find("input.machine_pk").Each(func(_ int, sel *goquery.Selection) {
		id := sel.AttrOr("value", "")
		if id == "" {
			return
		}
		name := htmlutil.FirstText(sel.Parent(), "span.js-reservation")
		if name == "" {
			return
		}
		out[id] = name
	})
	return out
}
