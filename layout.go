package keymanager

import "path"

// Key path suffixes.
const (
	FileKeySuffix    = ".key"
	PrivateKeySuffix = ".private.key"
	PublicKeySuffix  = ".public.key"
)

// Layout derives blob store paths from identities and file paths.
// The zero value is not usable; start from DefaultLayout.
type Layout struct {
	// FilesDirName is the per-identity directory holding user files ("files").
	FilesDirName string

	// KeysDirName is the per-identity directory holding key material ("files_encryption").
	KeysDirName string

	// KeyFilesDirName is the directory under KeysDirName holding per-file keys ("keyfiles").
	KeyFilesDirName string

	// PublicKeysDir is the shared directory holding every identity's public key ("/public-keys").
	PublicKeysDir string
}

// DefaultLayout returns the layout used by the file service:
//
//	/<id>/files/<rel>
//	/<id>/files_encryption/<id>.private.key
//	/<owner>/files_encryption/keyfiles/<rel>.key
//	/public-keys/<id>.public.key
func DefaultLayout() Layout {
	return Layout{
		FilesDirName:    "files",
		KeysDirName:     "files_encryption",
		KeyFilesDirName: "keyfiles",
		PublicKeysDir:   "/public-keys",
	}
}

// FilesDir returns "/<id>/files".
func (l Layout) FilesDir(id Identity) string {
	return "/" + string(id) + "/" + l.FilesDirName
}

// FilePath returns the fully-qualified path of a user file, as stored in share records.
func (l Layout) FilePath(id Identity, rel string) string {
	return l.FilesDir(id) + "/" + rel
}

// KeysDir returns the identity's key namespace, "/<id>/files_encryption".
func (l Layout) KeysDir(id Identity) string {
	return "/" + string(id) + "/" + l.KeysDirName
}

// PrivateKeyPath returns the path of the identity's private key.
func (l Layout) PrivateKeyPath(id Identity) string {
	return l.KeysDir(id) + "/" + string(id) + PrivateKeySuffix
}

// PublicKeyPath returns the path of the identity's public key.
func (l Layout) PublicKeyPath(id Identity) string {
	return path.Join(l.PublicKeysDir, string(id)+PublicKeySuffix)
}

// FileKeyPath returns the path of the per-file key for a resolved location.
func (l Layout) FileKeyPath(loc Location) string {
	return l.KeysDir(loc.Owner) + "/" + l.KeyFilesDirName + "/" + loc.Path + FileKeySuffix
}
