// Package download holds generated files behind short-lived, single-use
// tokens, the server-side counterpart of a revoked object URL.
package download

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an unclaimed object stays available.
const DefaultTTL = time.Minute

// ErrNotFound is returned for unknown, claimed, or expired tokens.
var ErrNotFound = errors.New("download not found or already revoked")

// Object is a generated file waiting to be fetched.
type Object struct {
	Token       string
	Name        string
	ContentType string
	Body        []byte
	Created     time.Time
}

// Registry stores objects until they are taken or expire.
type Registry struct {
	ttl time.Duration

	mu      sync.Mutex
	objects map[string]*entry
}

type entry struct {
	obj   Object
	timer *time.Timer
}

// NewRegistry creates a registry; ttl <= 0 means DefaultTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{ttl: ttl, objects: make(map[string]*entry)}
}

// Create registers body under a fresh token.
func (r *Registry) Create(name, contentType string, body []byte) Object {
	obj := Object{
		Token:       uuid.NewString(),
		Name:        name,
		ContentType: contentType,
		Body:        body,
		Created:     time.Now(),
	}

	r.mu.Lock()
	e := &entry{obj: obj}
	e.timer = time.AfterFunc(r.ttl, func() { r.Revoke(obj.Token) })
	r.objects[obj.Token] = e
	r.mu.Unlock()
	return obj
}

// Take returns the object and revokes its token.
func (r *Registry) Take(token string) (Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.objects[token]
	if !ok {
		return Object{}, ErrNotFound
	}
	e.timer.Stop()
	delete(r.objects, token)
	return e.obj, nil
}

// Revoke drops the object. It reports whether the token was live.
func (r *Registry) Revoke(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.objects[token]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.objects, token)
	return true
}

// Len returns the number of live objects.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}

// Serve writes the object for token as an attachment and revokes it.
func (r *Registry) Serve(w http.ResponseWriter, token string) {
	obj, err := r.Take(token)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+obj.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Body)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Body)
}
