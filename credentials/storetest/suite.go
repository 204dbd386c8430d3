// Package storetest holds behaviour checks shared by every credentials.Store.
package storetest

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-task-client/credentials"
	"github.com/jrsteele09/go-task-client/users"
	"github.com/stretchr/testify/require"
)

// AccessToken mints an HS256 token with the given subject and expiry.
func AccessToken(t testing.TB, sub string, exp time.Time) string {
	t.Helper()
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": sub,
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
	}).SignedString([]byte("storetest"))
	require.NoError(t, err)
	return tok
}

// Run exercises the Store contract against stores produced by newStore.
func Run(t *testing.T, newStore func(t *testing.T) credentials.Store) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	t.Run("absent values are nil without error", func(t *testing.T) {
		s := newStore(t)
		c, err := s.Get()
		require.NoError(t, err)
		require.Nil(t, c)

		p, err := s.GetProfile()
		require.NoError(t, err)
		require.Nil(t, p)

		require.NoError(t, s.Clear())
	})

	t.Run("put and get credential", func(t *testing.T) {
		s := newStore(t)
		at := AccessToken(t, "u-1", exp)
		require.NoError(t, s.Put(credentials.Credential{AccessToken: at, RefreshToken: "rt1"}))

		c, err := s.Get()
		require.NoError(t, err)
		require.NotNil(t, c)
		require.Equal(t, at, c.AccessToken)
		require.Equal(t, "rt1", c.RefreshToken)
		require.True(t, c.ExpiresAt.Equal(exp))
	})

	t.Run("put and get profile", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.PutProfile(users.Profile{ID: "u-1", Username: "johndoe", DisplayName: "John Doe"}))

		p, err := s.GetProfile()
		require.NoError(t, err)
		require.NotNil(t, p)
		require.Equal(t, "u-1", p.ID)
		require.Equal(t, "John Doe", p.DisplayName)
	})

	t.Run("save writes both and overwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(credentials.Credential{AccessToken: "at1", RefreshToken: "rt1"}, &users.Profile{ID: "u-1", Username: "a"}))
		require.NoError(t, s.Save(credentials.Credential{AccessToken: "at2", RefreshToken: "rt2"}, nil))

		c, err := s.Get()
		require.NoError(t, err)
		require.Equal(t, "at2", c.AccessToken)
		require.Equal(t, "rt2", c.RefreshToken)

		p, err := s.GetProfile()
		require.NoError(t, err)
		require.Equal(t, "u-1", p.ID)
	})

	t.Run("clear removes everything", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(credentials.Credential{AccessToken: "at1", RefreshToken: "rt1"}, &users.Profile{ID: "u-1", Username: "a"}))
		require.NoError(t, s.Clear())

		c, err := s.Get()
		require.NoError(t, err)
		require.Nil(t, c)
		p, err := s.GetProfile()
		require.NoError(t, err)
		require.Nil(t, p)
	})
}
