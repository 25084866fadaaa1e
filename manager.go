// Package keymanager stores and resolves the encryption keys of a multi-user
// file service: per-identity private and public keys, and per-file keys.
//
// A file may be shared by its owner with other identities. The per-file key
// always lives in the owner's key namespace, so every file key operation first
// resolves (requester, path) to the owner's Location through a ShareIndex.
//
// Usage:
//
//	m, err := keymanager.New(localStore,
//	    keymanager.WithShareIndex(shares),
//	    keymanager.WithInterceptionSwitch(&proxyFlag),
//	)
//	loc, err := m.ResolveFileKey(ctx, "bob", "shared-doc.txt")
//	key, err := m.FileKey(ctx, loc)
package keymanager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Manager reads and writes key blobs. Each call is synchronous and owns no
// background work. Manager is safe for concurrent use when its collaborators
// are, except for the interception switch (see InterceptionSwitch).
//
// Concurrent writes of the same key are last-write-wins.
type Manager struct {
	store  BlobStore
	shares ShareIndex
	sw     InterceptionSwitch
	layout Layout
	log    logrus.FieldLogger
	sealer *Sealer

	cacheSize int
	pubCache  *lru.Cache[Identity, []byte]

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tel            *telemetry

	err error // deferred validation error from options
}

// New creates a Manager over store.
func New(store BlobStore, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("keymanager: New store is nil")
	}

	m := &Manager{
		store:          store,
		shares:         noShares{},
		sw:             noopSwitch{},
		layout:         DefaultLayout(),
		log:            logrus.StandardLogger(),
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.err != nil {
		return nil, m.err
	}

	if m.cacheSize > 0 {
		cache, err := lru.New[Identity, []byte](m.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("keymanager: public key cache: %w", err)
		}
		m.pubCache = cache
	}

	tel, err := newTelemetry(m.meterProvider, m.tracerProvider)
	if err != nil {
		return nil, fmt.Errorf("keymanager: telemetry: %w", err)
	}
	m.tel = tel

	return m, nil
}

// Layout returns the path layout in use.
func (m *Manager) Layout() Layout {
	return m.layout
}

// ResolveFileKey determines where the key of requestedPath, as seen by requester, lives.
//
// Leading separators are stripped from requestedPath. If a share record targets
// "/<requester>/files/<path>" for requester, the first such record wins and the
// key lives in the owner's namespace under the record's source path. Otherwise
// the requester owns the file. A missing share is not an error; a matched record
// whose source cannot be parsed yields ErrMalformedShareRecord.
func (m *Manager) ResolveFileKey(ctx context.Context, requester Identity, requestedPath string) (loc Location, err error) {
	ctx, end := m.tel.start(ctx, opResolve, attribute.String("requester", string(requester)))
	defer func() { end(err) }()

	if err := requester.Validate(); err != nil {
		return Location{}, err
	}
	rel, err := normalizePath(requestedPath)
	if err != nil {
		return Location{}, err
	}

	target := m.layout.FilePath(requester, rel)
	records, err := m.shares.SharesByTarget(ctx, target, requester)
	if err != nil {
		return Location{}, fmt.Errorf("keymanager: share lookup by target %q: %w", target, err)
	}
	if len(records) == 0 {
		m.tel.resolved(ctx, false)
		return Location{Owner: requester, Path: rel}, nil
	}

	rec := records[0]
	loc, err = parseShareSource(rec.Source, m.layout)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"requester": requester,
			"target":    target,
			"source":    rec.Source,
		}).Warn("share record source is not a file path")
		return Location{}, err
	}

	m.tel.resolved(ctx, true)
	m.log.WithFields(logrus.Fields{
		"requester": requester,
		"owner":     loc.Owner,
		"path":      loc.Path,
	}).Debug("file key resolved through share")
	return loc, nil
}

// FileKey reads the per-file key at loc.
// Returns ErrKeyNotFound when the file has no key.
func (m *Manager) FileKey(ctx context.Context, loc Location) (key []byte, err error) {
	ctx, end := m.tel.start(ctx, opFileKey, attribute.String("owner", string(loc.Owner)))
	defer func() { end(err) }()

	loc, err = checkLocation(loc)
	if err != nil {
		return nil, err
	}
	return m.read(ctx, m.layout.FileKeyPath(loc))
}

// SetFileKey stores the per-file key at loc, replacing any previous key.
// The key directory is created when missing.
func (m *Manager) SetFileKey(ctx context.Context, loc Location, key []byte) (err error) {
	ctx, end := m.tel.start(ctx, opSetFileKey, attribute.String("owner", string(loc.Owner)))
	defer func() { end(err) }()

	loc, err = checkLocation(loc)
	if err != nil {
		return err
	}
	return m.write(ctx, m.layout.FileKeyPath(loc), key)
}

// ReadFileKey resolves requestedPath for requester and reads the file key.
func (m *Manager) ReadFileKey(ctx context.Context, requester Identity, requestedPath string) ([]byte, error) {
	loc, err := m.ResolveFileKey(ctx, requester, requestedPath)
	if err != nil {
		return nil, err
	}
	return m.FileKey(ctx, loc)
}

// WriteFileKey resolves requestedPath for requester and stores the file key in the owner's namespace.
func (m *Manager) WriteFileKey(ctx context.Context, requester Identity, requestedPath string, key []byte) error {
	loc, err := m.ResolveFileKey(ctx, requester, requestedPath)
	if err != nil {
		return err
	}
	return m.SetFileKey(ctx, loc, key)
}

// PrivateKey reads the private key of id, opening it when a Sealer is configured.
func (m *Manager) PrivateKey(ctx context.Context, id Identity) (key []byte, err error) {
	ctx, end := m.tel.start(ctx, opPrivateKey, attribute.String("identity", string(id)))
	defer func() { end(err) }()

	if err := id.Validate(); err != nil {
		return nil, err
	}
	blob, err := m.read(ctx, m.layout.PrivateKeyPath(id))
	if err != nil {
		return nil, err
	}
	if m.sealer == nil {
		return blob, nil
	}
	return m.sealer.Open(blob)
}

// SetPrivateKey stores the private key of id, sealing it when a Sealer is configured.
func (m *Manager) SetPrivateKey(ctx context.Context, id Identity, key []byte) (err error) {
	ctx, end := m.tel.start(ctx, opSetPrivateKey, attribute.String("identity", string(id)))
	defer func() { end(err) }()

	if err := id.Validate(); err != nil {
		return err
	}
	blob := key
	if m.sealer != nil {
		if blob, err = m.sealer.Seal(key); err != nil {
			return err
		}
	}
	return m.write(ctx, m.layout.PrivateKeyPath(id), blob)
}

// PublicKey reads the public key of id.
func (m *Manager) PublicKey(ctx context.Context, id Identity) (key []byte, err error) {
	ctx, end := m.tel.start(ctx, opPublicKey, attribute.String("identity", string(id)))
	defer func() { end(err) }()

	if err := id.Validate(); err != nil {
		return nil, err
	}
	return m.publicKey(ctx, id)
}

// SetPublicKey stores the public key of id.
func (m *Manager) SetPublicKey(ctx context.Context, id Identity, key []byte) (err error) {
	ctx, end := m.tel.start(ctx, opSetPublicKey, attribute.String("identity", string(id)))
	defer func() { end(err) }()

	if err := id.Validate(); err != nil {
		return err
	}
	if m.pubCache != nil {
		m.pubCache.Remove(id)
	}
	if err := m.write(ctx, m.layout.PublicKeyPath(id), key); err != nil {
		return err
	}
	if m.pubCache != nil {
		m.pubCache.Add(id, bytes.Clone(key))
	}
	return nil
}

// FileRecipients lists the identities entitled to the file, in discovery order.
//
// If a share record targets the requester's path, or the requester's path is the
// source of a share, the first such record determines the owner and source. The
// result is the owner followed by every SharedWith of the records for that
// source, in index order. Without any share record the requester alone is
// returned if the file exists in the requester's namespace.
//
// An empty result does not tell "no such file" apart from "no grantees".
func (m *Manager) FileRecipients(ctx context.Context, requester Identity, requestedPath string) (ids []Identity, err error) {
	ctx, end := m.tel.start(ctx, opFileRecipients, attribute.String("requester", string(requester)))
	defer func() { end(err) }()
	return m.fileRecipients(ctx, requester, requestedPath)
}

// PublicKeysForFile returns the public keys of every identity entitled to the
// file, labelled "key1", "key2", ... in FileRecipients order. Labels are only
// unique within one response and must not be used as identifiers.
// A recipient without a public key fails the call with ErrKeyNotFound.
func (m *Manager) PublicKeysForFile(ctx context.Context, requester Identity, requestedPath string) (keys map[string][]byte, err error) {
	ctx, end := m.tel.start(ctx, opPublicKeysForFile, attribute.String("requester", string(requester)))
	defer func() { end(err) }()

	recipients, err := m.fileRecipients(ctx, requester, requestedPath)
	if err != nil {
		return nil, err
	}

	keys = make(map[string][]byte, len(recipients))
	for i, id := range recipients {
		key, err := m.publicKey(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("recipient %q: %w", id, err)
		}
		keys[fmt.Sprintf("key%d", i+1)] = key
	}
	return keys, nil
}

func (m *Manager) fileRecipients(ctx context.Context, requester Identity, requestedPath string) ([]Identity, error) {
	if err := requester.Validate(); err != nil {
		return nil, err
	}
	rel, err := normalizePath(requestedPath)
	if err != nil {
		return nil, err
	}
	filePath := m.layout.FilePath(requester, rel)

	rec, found, err := m.firstShareOf(ctx, filePath, requester)
	if err != nil {
		return nil, err
	}
	if !found {
		exists, err := m.store.Exists(ctx, filePath)
		if err != nil {
			return nil, fmt.Errorf("keymanager: stat %s: %w", filePath, err)
		}
		if !exists {
			return nil, nil
		}
		return []Identity{requester}, nil
	}

	owner := rec.Owner
	if owner == "" {
		loc, err := parseShareSource(rec.Source, m.layout)
		if err != nil {
			return nil, err
		}
		owner = loc.Owner
	}

	all, err := m.shares.SharesBySource(ctx, rec.Source)
	if err != nil {
		return nil, fmt.Errorf("keymanager: share lookup by source %q: %w", rec.Source, err)
	}
	ids := make([]Identity, 0, len(all)+1)
	ids = append(ids, owner)
	for _, r := range all {
		ids = append(ids, r.SharedWith)
	}
	// Recipients become public-key paths; each must be a plain identity.
	for _, id := range ids {
		if err := id.Validate(); err != nil {
			m.log.WithFields(logrus.Fields{
				"source":    rec.Source,
				"recipient": id,
			}).Warn("share record names an invalid recipient")
			return nil, fmt.Errorf("%w: share of %q: %v", ErrMalformedShareRecord, rec.Source, err)
		}
	}

	m.log.WithFields(logrus.Fields{
		"requester":  requester,
		"owner":      owner,
		"source":     rec.Source,
		"recipients": len(ids),
	}).Debug("file recipients resolved through share")
	return ids, nil
}

// firstShareOf finds the share record that makes filePath visible to requester,
// falling back to a record that shares filePath out of the requester's namespace.
func (m *Manager) firstShareOf(ctx context.Context, filePath string, requester Identity) (ShareRecord, bool, error) {
	records, err := m.shares.SharesByTarget(ctx, filePath, requester)
	if err != nil {
		return ShareRecord{}, false, fmt.Errorf("keymanager: share lookup by target %q: %w", filePath, err)
	}
	if len(records) > 0 {
		return records[0], true, nil
	}

	records, err = m.shares.SharesBySource(ctx, filePath)
	if err != nil {
		return ShareRecord{}, false, fmt.Errorf("keymanager: share lookup by source %q: %w", filePath, err)
	}
	if len(records) > 0 {
		return records[0], true, nil
	}
	return ShareRecord{}, false, nil
}

func (m *Manager) publicKey(ctx context.Context, id Identity) ([]byte, error) {
	if m.pubCache != nil {
		if key, ok := m.pubCache.Get(id); ok {
			return bytes.Clone(key), nil
		}
	}
	key, err := m.read(ctx, m.layout.PublicKeyPath(id))
	if err != nil {
		return nil, err
	}
	if m.pubCache != nil {
		m.pubCache.Add(id, bytes.Clone(key))
	}
	return key, nil
}

func (m *Manager) read(ctx context.Context, p string) ([]byte, error) {
	b, err := m.store.Get(ctx, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, p)
		}
		return nil, fmt.Errorf("keymanager: read %s: %w", p, err)
	}
	return b, nil
}

// write stores data at p with interception suspended, creating the parent
// directory first when it is missing.
func (m *Manager) write(ctx context.Context, p string, data []byte) error {
	defer suspend(m.sw)()

	dir := path.Dir(p)
	exists, err := m.store.Exists(ctx, dir)
	if err != nil {
		return m.writeFailed(p, "stat "+dir, err)
	}
	if !exists {
		if err := m.store.Mkdir(ctx, dir); err != nil {
			return m.writeFailed(p, "mkdir "+dir, err)
		}
	}
	if err := m.store.Put(ctx, p, data); err != nil {
		return m.writeFailed(p, "put", err)
	}
	return nil
}

func (m *Manager) writeFailed(p, step string, err error) error {
	m.log.WithError(err).WithFields(logrus.Fields{
		"path": p,
		"step": step,
	}).Error("key write failed")
	return fmt.Errorf("%w: %s: %s: %w", ErrStorageWriteFailed, p, step, err)
}

// checkLocation validates a Location handed in by a caller and normalizes its path.
func checkLocation(loc Location) (Location, error) {
	if err := loc.Owner.Validate(); err != nil {
		return Location{}, err
	}
	rel, err := normalizePath(loc.Path)
	if err != nil {
		return Location{}, err
	}
	return Location{Owner: loc.Owner, Path: rel}, nil
}
