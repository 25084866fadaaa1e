package keymanager

import "context"

// BlobStore is path-addressed storage for key blobs. Paths are "/"-separated
// and absolute; the Layout decides which namespace a path belongs to.
//
// Contract:
//   - Get MUST return an error satisfying errors.Is(err, fs.ErrNotExist) when nothing is stored at path.
//   - Put MUST replace prior content atomically: readers see either the old or the new blob.
//   - Put MAY fail when the parent directory does not exist.
//   - Mkdir MUST create missing parents and MUST succeed when the directory already exists,
//     including when a concurrent caller created it first.
//
// Implementations must be safe for concurrent use.
type BlobStore interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
	Mkdir(ctx context.Context, path string) error
}

// ShareIndex is the read-only view of the sharing subsystem.
// Records are returned in the index's own order; callers rely on that order.
type ShareIndex interface {
	// SharesByTarget returns records whose Target equals target and whose SharedWith equals sharedWith.
	SharesByTarget(ctx context.Context, target string, sharedWith Identity) ([]ShareRecord, error)

	// SharesBySource returns every record whose Source equals source.
	SharesBySource(ctx context.Context, source string) ([]ShareRecord, error)
}

// noShares is the ShareIndex used when none is configured: nothing is ever shared.
type noShares struct{}

func (noShares) SharesByTarget(context.Context, string, Identity) ([]ShareRecord, error) {
	return nil, nil
}

func (noShares) SharesBySource(context.Context, string) ([]ShareRecord, error) {
	return nil, nil
}
