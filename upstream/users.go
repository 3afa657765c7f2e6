package upstream

import (
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// User is an account known to the fake platform.
type User struct {
	ID           int      `json:"id"`
	Username     string   `json:"username"`
	PasswordHash string   `json:"-"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Email        string   `json:"email"`
	Roles        []string `json:"-"`
	Active       bool     `json:"active"`
}

func HashPassword(password string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var errUserNotFound = errors.New("user not found")

// UserRepo is an in-memory user table keyed by id and username.
type UserRepo struct {
	users     map[int]*User
	usernames map[string]int
	nextID    int
	lock      sync.RWMutex
}

func NewUserRepo() *UserRepo {
	return &UserRepo{
		users:     make(map[int]*User),
		usernames: make(map[string]int),
		nextID:    1,
	}
}

func (ur *UserRepo) Upsert(user *User) error {
	if user.Username == "" {
		return errors.New("[UserRepo.Upsert] username required")
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == 0 {
		if existing, ok := ur.usernames[user.Username]; ok {
			user.ID = existing
		} else {
			user.ID = ur.nextID
			ur.nextID++
		}
	}
	ur.users[user.ID] = user
	ur.usernames[user.Username] = user.ID
	return nil
}

func (ur *UserRepo) GetByUsername(username string) (*User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.usernames[username]
	if !ok {
		return nil, errUserNotFound
	}
	return ur.users[id], nil
}

func (ur *UserRepo) GetByID(id string) (*User, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return nil, errUserNotFound
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[n]
	if !ok {
		return nil, errUserNotFound
	}
	return u, nil
}

func (ur *UserRepo) List() []*User {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	out := make([]*User, 0, len(ur.users))
	for _, u := range ur.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
