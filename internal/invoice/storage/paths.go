// Package storage names artifacts and folders for both storage tiers.
package storage

import (
	"fmt"
	"regexp"
	"strings"

	"invoicevault/internal/invoice/models"
)

const unassignedProject = "SIN_PROYECTO"

var (
	unsafeChars = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]+`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// Location identifies where a document's artifacts belong: the week/year,
// project and issuer it is filed under.
type Location struct {
	Week         int
	Year         int
	ProjectLabel string
	IssuerRFC    string
	IssuerName   string
}

// SanitizeName strips path-unsafe characters and normalizes separators so the
// result is usable as a single folder or path segment.
func SanitizeName(name string) string {
	s := unsafeChars.ReplaceAllString(name, " ")
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.Trim(s, " .")
	if s == "" {
		return "_"
	}
	return s
}

// pathSegment is SanitizeName with spaces turned into underscores, for object keys.
func pathSegment(name string) string {
	return strings.ReplaceAll(SanitizeName(name), " ", "_")
}

func (l Location) projectOrDefault() string {
	if strings.TrimSpace(l.ProjectLabel) == "" {
		return unassignedProject
	}
	return l.ProjectLabel
}

// ObjectPath returns the deterministic primary-tier key for a document artifact:
// <year>/week-<ww>/<project>/<issuer rfc>/<document id>_<kind>.<ext>
func ObjectPath(loc Location, documentID string, kind models.FileKind) string {
	return fmt.Sprintf("%d/week-%02d/%s/%s/%s_%s.%s",
		loc.Year,
		loc.Week,
		pathSegment(loc.projectOrDefault()),
		pathSegment(strings.ToUpper(loc.IssuerRFC)),
		pathSegment(strings.ToUpper(documentID)),
		kind,
		kind.Extension(),
	)
}

// FolderPath returns the three secondary-tier folder names, outermost first:
// week/year, project, issuer.
func FolderPath(loc Location) []string {
	issuer := strings.ToUpper(loc.IssuerRFC)
	if name := strings.TrimSpace(loc.IssuerName); name != "" {
		issuer += " - " + name
	}
	return []string{
		SanitizeName(fmt.Sprintf("Semana %02d-%d", loc.Week, loc.Year)),
		SanitizeName(loc.projectOrDefault()),
		SanitizeName(issuer),
	}
}

// FileName returns the secondary-tier file name of a document artifact.
func FileName(documentID string, kind models.FileKind) string {
	return SanitizeName(fmt.Sprintf("%s_%s.%s", strings.ToUpper(documentID), kind, kind.Extension()))
}
