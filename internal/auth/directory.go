package auth

import (
	"crypto/subtle"
	"errors"
	"sync"
)

var (
	// ErrUnknownActor is returned when no actor matches the tenant and id.
	ErrUnknownActor = errors.New("unknown actor")

	// ErrBadCredentials is returned when the supplied key does not match.
	ErrBadCredentials = errors.New("bad credentials")
)

// Actor is a provisioned crew member. Shipboard deployments provision the
// crew list from configuration; there is no self-service registration.
type Actor struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	Name     string   `json:"name"`
	Roles    []string `json:"roles"`
	Key      string   `json:"key"` // shared authentication key
}

// Directory resolves provisioned actors for token issuance and refresh.
type Directory interface {
	// Authenticate verifies the actor's key and returns the actor record.
	Authenticate(tenantID, actorID, key string) (Actor, error)

	// Lookup returns the actor record without checking credentials. Used on
	// refresh, where possession of a valid refresh token is the credential
	// and roles are re-resolved from the directory.
	Lookup(tenantID, actorID string) (Actor, error)
}

// StaticDirectory is a Directory backed by a fixed crew list.
type StaticDirectory struct {
	mu     sync.RWMutex
	actors map[string]Actor // tenantID + "/" + actorID
}

// NewStaticDirectory creates a directory from a provisioned crew list.
func NewStaticDirectory(actors []Actor) *StaticDirectory {
	d := &StaticDirectory{actors: make(map[string]Actor, len(actors))}
	for _, a := range actors {
		d.actors[a.TenantID+"/"+a.ID] = a
	}
	return d
}

// Authenticate verifies the actor's key in constant time.
func (d *StaticDirectory) Authenticate(tenantID, actorID, key string) (Actor, error) {
	a, err := d.Lookup(tenantID, actorID)
	if err != nil {
		return Actor{}, err
	}
	if subtle.ConstantTimeCompare([]byte(a.Key), []byte(key)) != 1 {
		return Actor{}, ErrBadCredentials
	}
	return a, nil
}

// Lookup returns the actor record for the tenant and id.
func (d *StaticDirectory) Lookup(tenantID, actorID string) (Actor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.actors[tenantID+"/"+actorID]
	if !ok {
		return Actor{}, ErrUnknownActor
	}
	return a, nil
}
