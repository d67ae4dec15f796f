// Package id provides ULID-based identifiers for sandbox instances and
// trace spans.
//
// Instance IDs are prefixed ULIDs ("inst_01J...") so log lines from two
// instances that overlap during a hot swap stay distinguishable, and the
// embedded timestamp tells when the instance was created.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// InstanceID identifies one sandboxed guest instance.
type InstanceID string

// Prefixes prepended to generated IDs.
const (
	InstancePrefix = "inst"
	TracePrefix    = "trace"
	SpanPrefix     = "span"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// entropy, so IDs created within the same millisecond still sort in order.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewInstanceID generates a new instance ID
func NewInstanceID() InstanceID {
	return InstanceID(Default().GenerateWithPrefix(InstancePrefix))
}

// NewTraceID generates an ID for one traced load or request.
func NewTraceID() string {
	return Default().GenerateWithPrefix(TracePrefix)
}

// NewSpanID generates an ID for one traced operation.
func NewSpanID() string {
	return Default().GenerateWithPrefix(SpanPrefix)
}

func (id InstanceID) String() string { return string(id) }

// Time extracts the creation time encoded in the instance ID.
func (id InstanceID) Time() (time.Time, error) {
	raw, ok := strings.CutPrefix(string(id), InstancePrefix+"_")
	if !ok {
		return time.Time{}, fmt.Errorf("instance id %q: missing %s_ prefix", id, InstancePrefix)
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("instance id %q: %w", id, err)
	}
	return ulid.Time(parsed.Time()), nil
}
