package userstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/vitadrop/vitaauth"
)

// Option configures a store.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock overrides the clock used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides how user ids are generated. The default is a
// random UUID.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newUser(in vitaauth.CreateUserInput, id string, now time.Time) vitaauth.User {
	role := in.Role
	if role == "" {
		role = vitaauth.RoleDonor
	}
	return vitaauth.User{
		ID:           id,
		FullName:     in.FullName,
		Email:        vitaauth.NormalizeEmail(in.Email),
		PasswordHash: in.PasswordHash,
		Phone:        in.Phone,
		Gender:       in.Gender,
		Role:         role,
		BloodGroup:   in.BloodGroup,
		Location:     in.Location,
		PhotoURL:     in.PhotoURL,
		Status:       vitaauth.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func applyPatch(u *vitaauth.User, p vitaauth.ProfilePatch, now time.Time) {
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Gender != nil {
		u.Gender = *p.Gender
	}
	if p.BloodGroup != nil {
		u.BloodGroup = *p.BloodGroup
	}
	if p.Location != nil {
		u.Location = *p.Location
	}
	if p.PhotoURL != nil {
		u.PhotoURL = *p.PhotoURL
	}
	u.UpdatedAt = now
}
