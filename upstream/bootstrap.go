package upstream

import (
	"strings"

	"github.com/pkg/errors"
)

// SeedUser describes an account created when the server starts.
type SeedUser struct {
	Username string
	Password string
	Role     string
}

// DefaultSeedUsers has one account per built-in role that can log in.
var DefaultSeedUsers = []SeedUser{
	{Username: "admin", Password: "admin", Role: "Admin"},
	{Username: "alpha", Password: "alpha", Role: "Alpha"},
	{Username: "gamma", Password: "gamma", Role: "Gamma"},
}

func (s *Server) bootstrapUsers() error {
	for _, seed := range DefaultSeedUsers {
		if err := s.AddUser(seed.Username, seed.Password, seed.Role); err != nil {
			return errors.Wrapf(err, "[Server.bootstrapUsers] %s", seed.Username)
		}
	}
	s.logger.Debug().Int("users", len(DefaultSeedUsers)).Msg("bootstrap complete")
	return nil
}

// AddUser creates or replaces an account with the given roles.
func (s *Server) AddUser(username, password string, roles ...string) error {
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return errors.Wrap(err, "[Server.AddUser] hash password")
	}
	first := username
	if first != "" {
		first = strings.ToUpper(first[:1]) + first[1:]
	}
	return s.users.Upsert(&User{
		Username:     username,
		PasswordHash: hash,
		FirstName:    first,
		LastName:     "User",
		Email:        username + "@example.com",
		Roles:        roles,
		Active:       true,
	})
}
