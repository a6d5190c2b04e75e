package vitaauth

import (
	"context"
	"time"
)

// Role is the platform role carried in every token's "role" claim.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDonor     Role = "donor"
	RoleHospital  Role = "hospital"
	RoleVolunteer Role = "volunteer"
	RoleGuest     Role = "guest"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDonor, RoleHospital, RoleVolunteer, RoleGuest:
		return true
	}
	return false
}

// AccountStatus is the lifecycle state of a user account. Only
// [StatusActive] accounts may log in or refresh.
type AccountStatus string

const (
	StatusActive      AccountStatus = "active"
	StatusSuspended   AccountStatus = "suspended"
	StatusBanned      AccountStatus = "banned"
	StatusDeactivated AccountStatus = "deactivated"
	StatusDeleted     AccountStatus = "deleted"
)

// BloodGroup is an ABO/Rh blood group. The empty value means unknown.
type BloodGroup string

const (
	BloodAPos  BloodGroup = "A+"
	BloodANeg  BloodGroup = "A-"
	BloodBPos  BloodGroup = "B+"
	BloodBNeg  BloodGroup = "B-"
	BloodABPos BloodGroup = "AB+"
	BloodABNeg BloodGroup = "AB-"
	BloodOPos  BloodGroup = "O+"
	BloodONeg  BloodGroup = "O-"
)

func (b BloodGroup) Valid() bool {
	switch b {
	case "", BloodAPos, BloodANeg, BloodBPos, BloodBNeg, BloodABPos, BloodABNeg, BloodOPos, BloodONeg:
		return true
	}
	return false
}

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) Valid() bool {
	switch g {
	case "", GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Location is the administrative address of a user.
type Location struct {
	Division string `json:"division,omitempty"`
	District string `json:"district,omitempty"`
	Upazila  string `json:"upazila,omitempty"`
}

// User is the account record returned by a [UserProvider]. PasswordHash is
// never serialized.
type User struct {
	ID           string        `json:"id"`
	FullName     string        `json:"fullName"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	Phone        string        `json:"phone,omitempty"`
	Gender       Gender        `json:"gender,omitempty"`
	Role         Role          `json:"role"`
	BloodGroup   BloodGroup    `json:"bloodGroup,omitempty"`
	Location     Location      `json:"location"`
	PhotoURL     string        `json:"photoURL,omitempty"`
	Status       AccountStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// RegisterInput is a self-registration request as received from a client.
type RegisterInput struct {
	FullName   string     `json:"fullName"`
	Email      string     `json:"email"`
	Password   string     `json:"password"`
	Phone      string     `json:"phone"`
	Gender     Gender     `json:"gender"`
	Role       Role       `json:"role"`
	BloodGroup BloodGroup `json:"bloodGroup"`
	Location   Location   `json:"location"`
	PhotoURL   string     `json:"photoURL"`
}

// CreateUserInput is a validated registration handed to
// [UserProvider.CreateUser]. The provider assigns ID, Status, and timestamps.
type CreateUserInput struct {
	FullName     string
	Email        string
	PasswordHash string
	Phone        string
	Gender       Gender
	Role         Role
	BloodGroup   BloodGroup
	Location     Location
	PhotoURL     string
}

// ProfilePatch lists the fields PUT /profile/{id} may change. Nil fields are
// left untouched.
type ProfilePatch struct {
	FullName   *string     `json:"fullName,omitempty"`
	Phone      *string     `json:"phone,omitempty"`
	Gender     *Gender     `json:"gender,omitempty"`
	BloodGroup *BloodGroup `json:"bloodGroup,omitempty"`
	Location   *Location   `json:"location,omitempty"`
	PhotoURL   *string     `json:"photoURL,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.FullName == nil && p.Phone == nil && p.Gender == nil &&
		p.BloodGroup == nil && p.Location == nil && p.PhotoURL == nil
}

// UserProvider is the user document store the engine authenticates against.
//
// Lookups return [ErrUserNotFound] when nothing matches, and CreateUser
// returns [ErrAccountExists] for a taken email. Other errors are treated as
// infrastructure failures.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	CreateUser(ctx context.Context, input CreateUserInput) (User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// Principal is the verified identity of an access token. It is derived from
// the token claims alone.
type Principal struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// SessionResult is returned by [Engine.Login] and [Engine.Register]. The
// refresh record has been persisted before it is returned.
type SessionResult struct {
	User             User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RefreshResult is returned by [Engine.Refresh]. RefreshToken is set only
// when rotation is enabled.
type RefreshResult struct {
	Principal        Principal
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Rotated          bool
}

// SessionInfo is the verified principal plus the account status read at the
// moment of the call.
type SessionInfo struct {
	Principal
	Status AccountStatus `json:"status"`
}
