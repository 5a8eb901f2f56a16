package domain

import "go.trai.ch/zerr"

var (
	// ErrIgnoredByPolicy is returned by a transformer when its include/exclude rules
	// exclude a path. It is not a failure: the worker loads the file natively.
	ErrIgnoredByPolicy = zerr.New("path ignored by compiler policy")

	// ErrCompileFailed is returned when the external compiler rejects a source file.
	ErrCompileFailed = zerr.New("failed to compile source")

	// ErrSourceStatFailed is returned when a source file's modification time cannot be read.
	ErrSourceStatFailed = zerr.New("failed to stat source file")

	// ErrWorkerGone is returned when a bridge write hits a worker that already exited.
	ErrWorkerGone = zerr.New("worker exited during exchange")

	// ErrFrameTruncated is returned when the bridge channel closes in the middle of a frame.
	ErrFrameTruncated = zerr.New("bridge channel closed mid-frame")

	// ErrFrameTooLarge is returned when a frame payload does not fit the 32-bit length prefix.
	ErrFrameTooLarge = zerr.New("bridge frame exceeds maximum length")

	// ErrChannelAllocFailed is returned when the bridge channel endpoint cannot be created.
	ErrChannelAllocFailed = zerr.New("failed to allocate bridge channel")

	// ErrChannelOpenFailed is returned when an allocated bridge endpoint cannot be opened.
	ErrChannelOpenFailed = zerr.New("failed to open bridge channel")

	// ErrWorkerSpawnFailed is returned when the worker process cannot be started.
	ErrWorkerSpawnFailed = zerr.New("failed to spawn worker process")

	// ErrWorkerForceKilled is reported when a worker ignored the graceful signal.
	ErrWorkerForceKilled = zerr.New("worker did not exit in time and was killed")

	// ErrControlMessageInvalid is returned when a control-channel message cannot be decoded.
	ErrControlMessageInvalid = zerr.New("invalid control message")

	// ErrUnexpectedMessage is returned when a control message of the wrong kind arrives.
	ErrUnexpectedMessage = zerr.New("unexpected control message")

	// ErrNoScript is returned when no program to run was given.
	ErrNoScript = zerr.New("no script specified")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrInvalidPattern is returned when an ignore/only glob is malformed.
	ErrInvalidPattern = zerr.New("invalid glob pattern")

	// ErrStoreReadFailed is returned when a cached artifact cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read cached artifact")

	// ErrStoreWriteFailed is returned when a cached artifact cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write cached artifact")

	// ErrStoreCreateFailed is returned when the artifact cache directory cannot be created.
	ErrStoreCreateFailed = zerr.New("failed to create artifact cache directory")

	// ErrWatchFailed is returned when a path cannot be added to the change feed.
	ErrWatchFailed = zerr.New("failed to watch path")
)
