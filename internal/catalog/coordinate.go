// Package catalog keeps the in-memory index of artifacts present in local
// storage and maps coordinates to their place in the storage tree.
package catalog

import (
	"fmt"
	"regexp"
	"strings"

	packageurl "github.com/package-url/packageurl-go"

	"github.com/depot-pkg/depot/internal/platform/httpx"
)

// DefaultExtension is assumed when a file is registered without one.
const DefaultExtension = "jar"

var (
	groupSegment = regexp.MustCompile(`^\w+$`)
	artifactID   = regexp.MustCompile(`^[\w-]+$`)
	versionID    = regexp.MustCompile(`^[\w.-]+$`)
	classifierID = regexp.MustCompile(`^[\w-]+$`)
	extensionID  = regexp.MustCompile(`^\w[\w.]*$`)
)

// Coordinate identifies one artifact file.
type Coordinate struct {
	Group      string
	Artifact   string
	Version    string
	Classifier string
	Extension  string
}

// ParsePath parses /<group-path>/<artifact>/<version>/<artifact>-<version>[-<classifier>].<extension>.
// Paths that do not follow the grammar wrap httpx.ErrValidation.
func ParsePath(path string) (Coordinate, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 4 {
		return Coordinate{}, fmt.Errorf("%w: %q is not an artifact coordinate", httpx.ErrValidation, path)
	}
	n := len(segments)
	group := segments[:n-3]
	for _, seg := range group {
		if !groupSegment.MatchString(seg) {
			return Coordinate{}, fmt.Errorf("%w: invalid group segment %q", httpx.ErrValidation, seg)
		}
	}
	artifact, version, name := segments[n-3], segments[n-2], segments[n-1]
	if !artifactID.MatchString(artifact) {
		return Coordinate{}, fmt.Errorf("%w: invalid artifact %q", httpx.ErrValidation, artifact)
	}
	if !versionID.MatchString(version) || strings.Trim(version, ".") == "" {
		return Coordinate{}, fmt.Errorf("%w: invalid version %q", httpx.ErrValidation, version)
	}
	classifier, extension, ok := SplitFilename(artifact, version, name)
	if !ok {
		return Coordinate{}, fmt.Errorf("%w: file %q does not match %s-%s", httpx.ErrValidation, name, artifact, version)
	}
	return Coordinate{
		Group:      strings.Join(group, "/"),
		Artifact:   artifact,
		Version:    version,
		Classifier: classifier,
		Extension:  extension,
	}, nil
}

// SplitFilename decomposes <artifact>-<version>[-<classifier>].<extension>.
// The classifier runs to the first dot after the prefix; the extension is the
// remainder, so lib-1.0-sources.jar.sha1 has classifier sources and extension jar.sha1.
func SplitFilename(artifact, version, name string) (classifier, extension string, ok bool) {
	prefix := artifact + "-" + version
	rest, found := strings.CutPrefix(name, prefix)
	if !found || rest == "" {
		return "", "", false
	}
	switch rest[0] {
	case '.':
		extension = rest[1:]
	case '-':
		dot := strings.IndexByte(rest, '.')
		if dot < 0 {
			return "", "", false
		}
		classifier, extension = rest[1:dot], rest[dot+1:]
		if !classifierID.MatchString(classifier) {
			return "", "", false
		}
	default:
		return "", "", false
	}
	if !extensionID.MatchString(extension) {
		return "", "", false
	}
	return classifier, extension, true
}

// Filename renders the file name of the coordinate.
func (c Coordinate) Filename() string {
	var b strings.Builder
	b.WriteString(c.Artifact)
	b.WriteByte('-')
	b.WriteString(c.Version)
	if c.Classifier != "" {
		b.WriteByte('-')
		b.WriteString(c.Classifier)
	}
	b.WriteByte('.')
	b.WriteString(c.extension())
	return b.String()
}

// Path renders the slash separated location relative to a repository root.
func (c Coordinate) Path() string {
	return strings.Join([]string{c.Group, c.Artifact, c.Version, c.Filename()}, "/")
}

// File returns the triple tracked for the coordinate.
func (c Coordinate) File() File {
	return File{Version: c.Version, Classifier: c.Classifier, Extension: c.extension()}
}

// PURL renders the coordinate as a maven package URL.
func (c Coordinate) PURL() string {
	qualifiers := map[string]string{}
	if c.Classifier != "" {
		qualifiers["classifier"] = c.Classifier
	}
	if ext := c.extension(); ext != DefaultExtension {
		qualifiers["type"] = ext
	}
	namespace := strings.ReplaceAll(c.Group, "/", ".")
	return packageurl.NewPackageURL(packageurl.TypeMaven, namespace, c.Artifact, c.Version,
		packageurl.QualifiersFromMap(qualifiers), "").ToString()
}

func (c Coordinate) String() string {
	return c.Path()
}

func (c Coordinate) extension() string {
	if c.Extension == "" {
		return DefaultExtension
	}
	return c.Extension
}
