package domain

import "github.com/cespare/xxhash/v2"

// Artifact is the compiled form of one source file.
// Artifacts are immutable once produced; a changed source yields a new Artifact.
type Artifact struct {
	// Path is the absolute path of the source file.
	Path string
	// Code is the transformed source text. Empty means "load the file as is".
	Code []byte
	// Map is the serialized position map for Code, if any.
	Map []byte
	// ModTime is the source modification time (unix nanoseconds) the artifact was built from.
	ModTime int64
	// Digest fingerprints Code and Map.
	Digest uint64
}

// NewArtifact builds an Artifact and computes its digest.
func NewArtifact(path string, code, posMap []byte, modTime int64) *Artifact {
	return &Artifact{
		Path:    path,
		Code:    code,
		Map:     posMap,
		ModTime: modTime,
		Digest:  Fingerprint(code, posMap),
	}
}

// Fingerprint hashes a code/map pair. The separator keeps ("ab","c") and ("a","bc") apart.
func Fingerprint(code, posMap []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(code)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(posMap)
	return d.Sum64()
}

// OutcomeKind classifies the result of compiling one path.
type OutcomeKind uint8

const (
	// OutcomeCompiled means an artifact is available.
	OutcomeCompiled OutcomeKind = iota
	// OutcomeIgnored means the compiler declined the path; load it natively.
	OutcomeIgnored
	// OutcomeFailed means the compiler rejected the source.
	OutcomeFailed
)

// String returns a lowercase name for the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompiled:
		return "compiled"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of a compile or cache lookup.
type Outcome struct {
	Kind     OutcomeKind
	Artifact *Artifact
	Err      error
}
