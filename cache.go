package bastion

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/xraph/bastion/permission"
)

// Cache stores prior decisions. Implementations must be safe for
// concurrent use. Errors are advisory: the engine logs them and resolves
// uncached.
type Cache interface {
	// Get returns a cached decision, if available.
	Get(ctx context.Context, key CacheKey) (*Decision, bool, error)

	// Set stores a decision.
	Set(ctx context.Context, key CacheKey, d *Decision) error

	// InvalidateSubject removes every decision cached for a subject.
	InvalidateSubject(ctx context.Context, subjectID string) error

	// InvalidateResource removes every decision cached for one resource
	// instance.
	InvalidateResource(ctx context.Context, resourceType permission.ResourceType, resourceID string) error

	// InvalidateAll empties the cache.
	InvalidateAll(ctx context.Context) error
}

// CacheKey addresses one cached decision. ContextHash covers the request
// context so checks with different owners or attributes never share an
// entry.
type CacheKey struct {
	SubjectID    string
	ResourceType permission.ResourceType
	Action       permission.Action
	ResourceID   string
	ContextHash  uint64
}

// String renders the key as "len:subject|type|action|len:resource|hash".
// Subject and resource IDs are free-form, so they carry their byte length
// and a separator inside one cannot shift the other fields.
func (k CacheKey) String() string {
	var b strings.Builder
	writeSized(&b, k.SubjectID)
	b.WriteByte('|')
	b.WriteString(string(k.ResourceType))
	b.WriteByte('|')
	b.WriteString(string(k.Action))
	b.WriteByte('|')
	writeSized(&b, k.ResourceID)
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(k.ContextHash, 16))
	return b.String()
}

func writeSized(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

// cacheKeyFor builds the cache key for a request evaluated under rc. It
// reports false when the context cannot be hashed, in which case the
// decision is not cached.
func cacheKeyFor(req *CheckRequest, rc *RequestContext) (CacheKey, bool) {
	h, ok := hashContext(rc)
	if !ok {
		return CacheKey{}, false
	}
	return CacheKey{
		SubjectID:    req.SubjectID,
		ResourceType: req.ResourceType,
		Action:       req.Action,
		ResourceID:   req.ResourceID,
		ContextHash:  h,
	}, true
}

// hashContext hashes the JSON form of rc. encoding/json sorts map keys, so
// equal contexts hash equally. An empty context hashes to zero.
func hashContext(rc *RequestContext) (uint64, bool) {
	if rc == nil {
		return 0, true
	}
	if rc.SubjectOrgID == "" && rc.ResourceOwnerID == "" && rc.ResourceOrgID == "" && len(rc.Attributes) == 0 {
		return 0, true
	}
	raw, err := json.Marshal(rc)
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(raw), true
}
