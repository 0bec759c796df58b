package remote

import (
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// Authenticator provides credentials for a registry host.
type Authenticator interface {
	Authenticate(registry string) (username, password string, err error)
}

// BasicAuth is a fixed username and password.
type BasicAuth struct {
	Username string
	Password string
}

func (a BasicAuth) Authenticate(string) (string, string, error) {
	return a.Username, a.Password, nil
}

func (r *Registry) remoteOptions() []remote.Option {
	if r.auth != nil {
		username, password, err := r.auth.Authenticate(r.Host())
		if err == nil && username != "" {
			return []remote.Option{remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			})}
		}
	}
	return []remote.Option{remote.WithAuthFromKeychain(authn.DefaultKeychain)}
}
