// Package media links messages to extracted media files and derives previews.
package media

import (
	"regexp"
	"strings"

	"github.com/kiranshivaraju/chatvault/pkg/models"
)

// reExportName matches the exporter's generated attachment names,
// e.g. IMG-20231231-WA0001.jpg.
var reExportName = regexp.MustCompile(`(?i)([A-Z]{3}-\d{8}-[A-Z]{2}\d{4}\.\w+)`)

// Associator resolves at most one media candidate per message body.
type Associator struct {
	candidates []models.MediaCandidate
	byName     map[string]models.MediaCandidate
}

// NewAssociator indexes candidates by exact file name. When two candidates
// share a name the first one wins.
func NewAssociator(candidates []models.MediaCandidate) *Associator {
	a := &Associator{
		candidates: candidates,
		byName:     make(map[string]models.MediaCandidate, len(candidates)),
	}
	for _, c := range candidates {
		if _, dup := a.byName[c.Name]; !dup {
			a.byName[c.Name] = c
		}
	}
	return a
}

// Find returns the media candidate referenced by body. An exporter-style name
// in the body is looked up exactly and nothing else is tried. Otherwise the
// candidate whose name occurs earliest in the body wins, the longer name
// breaking ties.
func (a *Associator) Find(body string) (models.MediaCandidate, bool) {
	if body == "" || len(a.candidates) == 0 {
		return models.MediaCandidate{}, false
	}

	if m := reExportName.FindStringSubmatch(body); m != nil {
		c, ok := a.byName[m[1]]
		return c, ok
	}

	var (
		best    models.MediaCandidate
		bestPos = -1
	)
	for _, c := range a.candidates {
		pos := strings.Index(body, c.Name)
		if pos < 0 {
			continue
		}
		if bestPos < 0 || pos < bestPos || (pos == bestPos && len(c.Name) > len(best.Name)) {
			best, bestPos = c, pos
		}
	}
	return best, bestPos >= 0
}

// Resolve links msg to its media, if any. A linked message takes its type from
// the media's extension; otherwise msg is returned unchanged with no link.
func (a *Associator) Resolve(msg models.ParsedMessage) (models.ParsedMessage, *models.MediaCandidate) {
	if msg.MessageType == models.MessageTypeSystem {
		return msg, nil
	}
	c, ok := a.Find(msg.BodyText())
	if !ok {
		msg.Metadata.LinkedMediaName = nil
		return msg, nil
	}
	name := c.Name
	msg.Metadata.LinkedMediaName = &name
	msg.MessageType = models.MediaTypeForName(c.Name)
	return msg, &c
}
