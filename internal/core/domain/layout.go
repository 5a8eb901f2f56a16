package domain

import "path/filepath"

const (
	// RespawnDirName is the name of the internal workspace directory.
	RespawnDirName = ".respawn"

	// CacheDirName is the name of the compiled artifact cache directory.
	CacheDirName = "cache"

	// ConfigFileName is the name of the optional project configuration file.
	ConfigFileName = "respawn.yaml"

	// BridgeDirPattern is the os.MkdirTemp pattern for per-run bridge channels.
	BridgeDirPattern = "respawn-bridge-*"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the permission for bridge channels (rw-------).
	PrivateFilePerm = 0o600
)

// DefaultCachePath returns the default artifact cache location.
// It joins .respawn and cache.
func DefaultCachePath() string {
	return filepath.Join(RespawnDirName, CacheDirName)
}
