// Package namespace implements namespace admission: validating the
// namespace half of a model.TopicUUID against configured policy before a
// subscribe is accepted, and persisting namespace metadata the first time
// each namespace is seen. Grounded on the prior single-node runtime's internal/namespace
// (EnsureNamespace/Meta/pebble-backed registry), narrowed to the fields
// the Control Tower's control plane actually consults.
package namespace

import (
	"encoding/json"
	"errors"
	"regexp"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/AlexxNica/RocketSpeed/internal/storage/pebble"
)

// Meta holds namespace metadata recorded the first time a namespace is seen.
type Meta struct {
	Name            string `json:"name"`
	CreatedAtMs     int64  `json:"createdAtMs"`
	Partitions      int    `json:"partitions"`
	PayloadMaxBytes int    `json:"payloadMaxBytes"`
	HeadersMaxBytes int    `json:"headersMaxBytes"`
}

// Defaults returns opinionated defaults for newly admitted namespaces.
func Defaults() Meta {
	return Meta{
		Partitions:      16,
		PayloadMaxBytes: 1 << 20,
		HeadersMaxBytes: 16 << 10,
	}
}

// ErrNameNotAllowed is returned when a namespace fails policy (regex or
// allow-list).
var ErrNameNotAllowed = errors.New("namespace: name not allowed")

// Policy is the subset of config.Config namespace admission governs.
// Validate checks NameRegex and AllowedNames only; AllowAutoCreate and
// MaxNamespaces are carried here but not checked by Validate.
type Policy struct {
	AllowAutoCreate bool
	NameRegex       string
	AllowedNames    []string
	MaxNamespaces   int
}

// Validate checks name against policy, independent of persistence. Used
// by the control plane to reject a Subscribe synchronously
// before ever consulting the Router.
func (p Policy) Validate(name string) error {
	if p.NameRegex != "" {
		re, err := regexp.Compile("^" + p.NameRegex + "$")
		if err == nil && !re.MatchString(name) {
			return ErrNameNotAllowed
		}
	}
	if len(p.AllowedNames) > 0 {
		allowed := false
		for _, n := range p.AllowedNames {
			if n == name {
				allowed = true
				break
			}
		}
		if !allowed {
			return ErrNameNotAllowed
		}
	}
	return nil
}

var nsMetaPrefix = []byte("nsmeta/")

func nsMetaKey(ns string) []byte {
	k := make([]byte, 0, len(nsMetaPrefix)+len(ns))
	k = append(k, nsMetaPrefix...)
	k = append(k, ns...)
	return k
}

// EnsureNamespace creates a namespace meta record if absent, returning the
// effective meta. Idempotent: returns the existing record if present.
func EnsureNamespace(db *pebblestore.DB, name string) (Meta, error) {
	key := nsMetaKey(name)
	if b, err := db.Get(key); err == nil && len(b) > 0 {
		var m Meta
		if err := json.Unmarshal(b, &m); err == nil {
			return m, nil
		}
	}
	m := Defaults()
	m.Name = name
	m.CreatedAtMs = time.Now().UnixMilli()
	encoded, err := json.Marshal(m)
	if err != nil {
		return Meta{}, err
	}
	if err := db.Set(key, encoded); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// CountNamespaces returns the number of namespaces admitted so far. O(n)
// over the nsmeta/ keyspace. Neither Validate nor EnsureNamespace calls
// it, so Policy.MaxNamespaces is not enforced on admission.
func CountNamespaces(db *pebblestore.DB) (int, error) {
	upper := append(append([]byte(nil), nsMetaPrefix...), 0xff)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: nsMetaPrefix, UpperBound: upper})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		n++
	}
	return n, nil
}
