package keymanager

import (
	"fmt"
	"strings"
)

// Identity names a user. It is unique within the system and is used verbatim
// as a path segment, so it must be non-empty and must not contain "/".
type Identity string

// Validate reports ErrInvalidIdentity for identities that cannot be used as a path segment.
func (id Identity) Validate() error {
	if id == "" {
		return fmt.Errorf("%w: empty identity", ErrInvalidIdentity)
	}
	if strings.ContainsAny(string(id), "/\x00") {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidIdentity, string(id))
	}
	if id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, string(id))
	}
	return nil
}

func (id Identity) String() string {
	return string(id)
}

// ShareRecord states that Owner's file at Source is visible to SharedWith at Target.
// Source and Target are fully-qualified file paths ("/<identity>/files/<rel>").
type ShareRecord struct {
	Owner      Identity
	Source     string
	Target     string
	SharedWith Identity
}

// Location is where a file's key actually lives: the owning identity and the
// file path relative to the owner's files. For shared files Owner is never the
// requester, so keys are always written into the owner's namespace.
type Location struct {
	Owner Identity
	Path  string
}

func (l Location) String() string {
	return string(l.Owner) + ":" + l.Path
}

// normalizePath strips leading separators from a requested file path.
// The remainder is kept as given; only empty paths and ".." segments are refused.
func normalizePath(p string) (string, error) {
	rel := strings.TrimLeft(p, "/")
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.HasSuffix(rel, "/") {
		return "", fmt.Errorf("%w: %q names a directory", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return rel, nil
}

// parseShareSource splits a share source path "/<owner>/files/<rel>" into the
// owner identity and the path relative to the owner's files.
func parseShareSource(source string, layout Layout) (Location, error) {
	parts := strings.Split(source, "/")
	if len(parts) < 2 || parts[1] == "" {
		return Location{}, fmt.Errorf("%w: source %q has no owner segment", ErrMalformedShareRecord, source)
	}
	owner := Identity(parts[1])
	if err := owner.Validate(); err != nil {
		return Location{}, fmt.Errorf("%w: source %q: %v", ErrMalformedShareRecord, source, err)
	}

	prefix := layout.FilesDir(owner) + "/"
	rel, ok := strings.CutPrefix(source, prefix)
	if !ok || rel == "" {
		return Location{}, fmt.Errorf("%w: source %q is not under %q", ErrMalformedShareRecord, source, prefix)
	}
	if _, err := normalizePath(rel); err != nil {
		return Location{}, fmt.Errorf("%w: source %q: %v", ErrMalformedShareRecord, source, err)
	}
	return Location{Owner: owner, Path: rel}, nil
}
