package core

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DemoUser is the seeded identity accepted by the default directory.
var DemoUser = AuthUser{ID: "demo-user-id", Email: "demo@example.com", Name: "Demo User"}

const demoPassword = "password"

// IdentityDirectory resolves credentials and ids to known identities.
type IdentityDirectory interface {
	Authenticate(ctx context.Context, email, password string) (AuthUser, error)
	FindByID(ctx context.Context, id string) (AuthUser, bool)
}

type staticIdentity struct {
	user AuthUser
	hash []byte
}

// StaticDirectory holds a fixed identity set. Passwords are kept only as bcrypt hashes.
type StaticDirectory struct {
	byEmail map[string]staticIdentity
	byID    map[string]AuthUser
}

// NewStaticDirectory hashes each password with cost (bcrypt.DefaultCost when <= 0).
func NewStaticDirectory(cost int, users map[AuthUser]string) (*StaticDirectory, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	d := &StaticDirectory{
		byEmail: make(map[string]staticIdentity, len(users)),
		byID:    make(map[string]AuthUser, len(users)),
	}
	for u, password := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return nil, fmt.Errorf("identity: hash password for %s: %w", u.ID, err)
		}
		d.byEmail[u.Email] = staticIdentity{user: u, hash: hash}
		d.byID[u.ID] = u
	}
	return d, nil
}

// NewDemoDirectory returns a directory containing only DemoUser.
func NewDemoDirectory(cost int) (*StaticDirectory, error) {
	return NewStaticDirectory(cost, map[AuthUser]string{DemoUser: demoPassword})
}

func (d *StaticDirectory) Authenticate(_ context.Context, email, password string) (AuthUser, error) {
	id, ok := d.byEmail[email]
	if !ok {
		return AuthUser{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(id.hash, []byte(password)) != nil {
		return AuthUser{}, ErrInvalidCredentials
	}
	return id.user, nil
}

func (d *StaticDirectory) FindByID(_ context.Context, id string) (AuthUser, bool) {
	u, ok := d.byID[id]
	return u, ok
}
