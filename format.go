package lal

import (
	"encoding/binary"
	"reflect"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// MessageKey uniquely identifies a registered message, region, or
// source-location format within a single Log instance.
type MessageKey uint32

// ParameterKey identifies a parameter's Go type within a FormatDescriptor's
// parameter list.
type ParameterKey uint32

// Reserved MessageKey values. A registered format's key is a 32-bit hash
// (see describeTemplate); nothing rejects a hash that equals one of these
// values.
const (
	AnonymousRegionStart MessageKey = 0
	NamedRegionStart     MessageKey = 1
	RegionEnd            MessageKey = 2
)

// WildcardParameter matches any parameter type in the parameter list given
// to algebra.Tree.FilterMessageKeys.
const WildcardParameter ParameterKey = 0

// Template is implemented by every message and named-region format type a
// producer emits. Each distinct Go type implementing Template is treated as
// a distinct format, analogous to a distinct (F, Ts...) instantiation in the
// original C++ template-based design.
type Template interface {
	// Message returns the format's template text. Each "{}" occurrence
	// marks one parameter placeholder.
	Message() string
	// Category returns the format's severity/category value.
	Category() uint32
}

// FormatDescriptor is the runtime and on-disk description of a single
// registered message, named-region, or source-location format.
type FormatDescriptor struct {
	// Key is the MessageKey a producer actually wrote to the stream for
	// this format.
	Key MessageKey
	// ContentHash is the hash of Message alone, used by
	// algebra.FilterMessage to match descriptors regardless of which Key
	// a particular build happened to assign them.
	ContentHash uint32
	// Message is the format's template text.
	Message string
	// Category is the format's severity/category value.
	Category uint32
	// ParamKeys lists, in declaration order, the ParameterKey of every
	// parameter the format carries.
	ParamKeys []ParameterKey
	// ParamSizes lists, in the same order as ParamKeys, the encoded byte
	// size of each parameter.
	ParamSizes []uint32
	// PayloadSize is the sum of ParamSizes: the number of payload bytes
	// following a message's key (and, if ordering is enabled, its index)
	// on the wire.
	PayloadSize uint32
}

// countParameters counts non-overlapping occurrences of "{}" in s.
func countParameters(s string) int {
	return strings.Count(s, "{}")
}

// hash32 derives a 32-bit fingerprint from an arbitrary string using
// xxhash, standing in for the C++ original's consteval string hash.
func hash32(s string) uint32 {
	return uint32(xxhash.Sum64String(s))
}

// HashMessageText computes the content-hash portion of a FormatDescriptor:
// a fingerprint of a message's template text alone, independent of its
// category, parameter types, or whatever MessageKey a given build happened
// to assign it. The analyze package uses this to recompute ContentHash
// when reconstructing descriptors from a .fmt file, and algebra.Tree uses
// it to match a caller-supplied Template against registered descriptors in
// FilterMessage.
func HashMessageText(s string) uint32 {
	return hash32(s)
}

func hashUint32(v uint32) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return uint32(xxhash.Sum64(b[:]))
}

// paramEntry describes one entry of the standard parameter-type catalog.
type paramEntry struct {
	key  ParameterKey
	size uint32
}

var (
	paramCatalogMu sync.RWMutex
	paramCatalog   = buildStandardParamCatalog()
)

func buildStandardParamCatalog() map[reflect.Type]paramEntry {
	m := make(map[reflect.Type]paramEntry, 10)
	add := func(v any, name string, size uint32) {
		m[reflect.TypeOf(v)] = paramEntry{key: ParameterKey(hash32(name)), size: size}
	}
	add(int8(0), "int8", 1)
	add(uint8(0), "uint8", 1)
	add(int16(0), "int16", 2)
	add(uint16(0), "uint16", 2)
	add(int32(0), "int32", 4)
	add(uint32(0), "uint32", 4)
	add(int64(0), "int64", 8)
	add(uint64(0), "uint64", 8)
	add(float32(0), "float32", 4)
	add(float64(0), "float64", 8)
	return m
}

// ParamKeyFor returns the ParameterKey and encoded size for the concrete Go
// type of v, and false if v is not one of the standard catalog types.
func ParamKeyFor(v any) (ParameterKey, uint32, bool) {
	paramCatalogMu.RLock()
	defer paramCatalogMu.RUnlock()
	e, ok := paramCatalog[reflect.TypeOf(v)]
	return e.key, e.size, ok
}

// StandardParameterSizes returns the byte size of every standard-catalog
// ParameterKey, for use by analyze.Analyzer as its default catalog.
func StandardParameterSizes() map[ParameterKey]uint32 {
	paramCatalogMu.RLock()
	defer paramCatalogMu.RUnlock()
	out := make(map[ParameterKey]uint32, len(paramCatalog))
	for _, e := range paramCatalog {
		out[e.key] = e.size
	}
	return out
}

// describeTemplate computes the MessageKey, parameter key/size lists, and
// payload size for tmpl given a concrete set of argument values.
func describeTemplate(tmpl Template, values []any) (MessageKey, []ParameterKey, []uint32, uint32, error) {
	paramKeys := make([]ParameterKey, len(values))
	paramSizes := make([]uint32, len(values))
	var payloadSize uint32
	for i, v := range values {
		key, size, ok := ParamKeyFor(v)
		if !ok {
			return 0, nil, nil, 0, NewError(ErrContractViolation, "unsupported parameter type %T", v)
		}
		paramKeys[i] = key
		paramSizes[i] = size
		payloadSize += size
	}

	h := hash32(tmpl.Message()) ^ hashUint32(tmpl.Category())
	for _, pk := range paramKeys {
		h ^= uint32(pk)
	}
	return MessageKey(h), paramKeys, paramSizes, payloadSize, nil
}

// formatRegistry holds every format registered by a single Log instance,
// guarded by a mutex for the (rare) registration path and a sync.Map of
// "visited" sentinels keyed by the Go type of the Template that registered
// each format together with its MessageKey, so that repeated emissions of an
// already-registered format never touch the mutex at all. This mirrors the
// original's per-call-site atomic_bool "visited" gate: a Template's concrete
// Go type plus the MessageKey (which folds in the parameter types) plays the
// role the C++ template instantiation (F, Ts...) played as a call-site
// identity.
type formatRegistry struct {
	visited sync.Map // map[visitedKey]struct{}

	mu     sync.Mutex
	byKey  map[MessageKey]*FormatDescriptor
	order  []MessageKey
}

func newFormatRegistry() *formatRegistry {
	return &formatRegistry{byKey: map[MessageKey]*FormatDescriptor{}}
}

type visitedKey struct {
	callSite reflect.Type
	key      MessageKey
}

// registerOnce registers the descriptor produced by build() the first time
// callSite is seen with the key build() returns, and is a no-op (aside from
// the build() call and a sync.Map lookup) on every subsequent call.
func (r *formatRegistry) registerOnce(callSite reflect.Type, build func() (MessageKey, FormatDescriptor)) {
	key, desc := build()
	if _, loaded := r.visited.LoadOrStore(visitedKey{callSite, key}, struct{}{}); loaded {
		return
	}
	r.registerDescriptor(key, desc)
}

func (r *formatRegistry) registerDescriptor(key MessageKey, desc FormatDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[key]; ok {
		return
	}
	desc.Key = key
	d := desc
	r.byKey[key] = &d
	r.order = append(r.order, key)
}

// descriptors returns every registered descriptor, in registration order.
func (r *formatRegistry) descriptors() []*FormatDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*FormatDescriptor, len(r.order))
	for i, k := range r.order {
		out[i] = r.byKey[k]
	}
	return out
}
