package admin

import (
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"weblog/common"
	"weblog/models"
)

// CreateUser creates the author account, or resets its password when the
// email is already registered.
func CreateUser(db *gorm.DB, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	var user models.User
	err = db.Where(models.User{Email: email}).
		Assign(models.User{PasswordHash: hash}).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, errors.Wrapf(err, "save user %s", email)
	}

	common.Log.WithField("email", email).Info("author account ready")
	return &user, nil
}
