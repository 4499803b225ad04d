// Package locker provides an HTTP middleware which allows an HTTPHandler to be locked, returning 423 (locked)
package locker

import (
	"encoding/json"
	"go/types"
	"net/http"
	"strings"
	"sync"

	"github.com/nasa-jpl/cryosweep/generichttp"
)

// ManipulableLock is a lock that can be manipulated over HTTP and guards
// other handlers
type ManipulableLock interface {
	Lock()
	Unlock()
	Locked() bool
	Check(http.Handler) http.Handler
	HTTPGet(http.ResponseWriter, *http.Request)
	HTTPSet(http.ResponseWriter, *http.Request)
}

// Inject adds a lock route to a generichttp.HTTPer which is used to manipulate the locker
func Inject(other generichttp.HTTPer, l ManipulableLock) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/lock"}] = l.HTTPGet
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/lock"}] = l.HTTPSet
}

// Locker is a type which behaves like a sync.Mutex without the blocking,
// and holds a list of routes to not protect.
//
// A Locker may also be held by a program, e.g. for the length of a sweep.
// A held Locker is locked and cannot be unlocked over HTTP until Release.
type Locker struct {
	mu       sync.Mutex
	isLocked bool
	holder   string

	// DoNotProtect is a list of paths not to apply the lock to
	DoNotProtect []string
}

// New returns a new Locker with DoNotProtect prepopulated with "lock"
func New() *Locker {
	return &Locker{DoNotProtect: []string{"lock"}}
}

// Lock the locker
func (l *Locker) Lock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.isLocked = true
}

// Unlock the locker.  Does nothing while the locker is held.
func (l *Locker) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder == "" {
		l.isLocked = false
	}
}

// Hold locks the locker on behalf of who
func (l *Locker) Hold(who string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holder = who
	l.isLocked = true
}

// Release undoes Hold and unlocks the locker
func (l *Locker) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holder = ""
	l.isLocked = false
}

// Holder returns who holds the locker, or "" if nobody does
func (l *Locker) Holder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

// Locked returns true if the locker is locked
func (l *Locker) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isLocked
}

// Check is an HTTP middleware that returns http.StatusLocked if Locked() is true, otherwise passes down the line
func (l *Locker) Check(next http.Handler) http.Handler {
	// return a handlerfunc wrapping a handler, middleware/generator pattern
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Locked() {
			// check if the path is protected
			protected := true
			url := r.URL.Path
			for _, str := range l.DoNotProtect {
				if strings.Contains(url, str) {
					protected = false
				}
			}
			// if it is, bounce the request - locked
			if protected {
				w.WriteHeader(http.StatusLocked)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSet calls Lock or Unlock based on json:bool on the request body.
// Unlocking a held locker is refused with http.StatusLocked.
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	b := generichttp.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&b)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.Bool {
		l.Lock()
	} else {
		if who := l.Holder(); who != "" {
			http.Error(w, "held by "+who, http.StatusLocked)
			return
		}
		l.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPGet returns Locked() over HTTP as JSON
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	b := l.Locked()
	hp := generichttp.HumanPayload{T: types.Bool, Bool: b}
	hp.EncodeAndRespond(w, r)
}
