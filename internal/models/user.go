package models

import "time"

type UserRole string

const (
	UserRoleAdmin              UserRole = "Admin"
	UserRoleSchool             UserRole = "School"
	UserRoleCollege            UserRole = "College"
	UserRoleUniversity         UserRole = "University"
	UserRoleStudent            UserRole = "Student"
	UserRoleTeacher            UserRole = "Teacher"
	UserRoleParent             UserRole = "Parent"
	UserRoleDirector           UserRole = "Director"
	UserRoleITI                UserRole = "ITI"
	UserRoleTechnicalInstitute UserRole = "TechnicalInstitute"
	UserRoleMedical            UserRole = "Medical"
	UserRoleNurse              UserRole = "Nurse"
	UserRoleJobSeeker          UserRole = "JobSeeker"
	UserRoleCompany            UserRole = "Company"
	UserRoleCoachingCenter     UserRole = "CoachingCenter"
	UserRoleComputerCenter     UserRole = "ComputerCenter"
	UserRoleNGO                UserRole = "NGO"
	UserRoleSecurity           UserRole = "Security"
	UserRoleStaff              UserRole = "Staff"
	UserRoleFarmer             UserRole = "Farmer"
)

var knownRoles = map[UserRole]struct{}{
	UserRoleAdmin: {}, UserRoleSchool: {}, UserRoleCollege: {}, UserRoleUniversity: {},
	UserRoleStudent: {}, UserRoleTeacher: {}, UserRoleParent: {}, UserRoleDirector: {},
	UserRoleITI: {}, UserRoleTechnicalInstitute: {}, UserRoleMedical: {}, UserRoleNurse: {},
	UserRoleJobSeeker: {}, UserRoleCompany: {}, UserRoleCoachingCenter: {}, UserRoleComputerCenter: {},
	UserRoleNGO: {}, UserRoleSecurity: {}, UserRoleStaff: {}, UserRoleFarmer: {},
}

func (r UserRole) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// NeedsSetup reports whether a fresh login with this role goes through onboarding.
func (r UserRole) NeedsSetup() bool {
	return r == UserRoleStudent || r == UserRoleJobSeeker
}

// User is the record persisted in the session slot. Field names follow the
// browser app's JSON shape.
type User struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Role         UserRole `json:"role"`
	Username     string   `json:"username"`
	Email        string   `json:"email,omitempty"`
	MobileNumber string   `json:"mobileNumber,omitempty"`
	FatherName   string   `json:"fatherName,omitempty"`
	MotherName   string   `json:"motherName,omitempty"`
	PhotoURL     string   `json:"photoUrl,omitempty"`
}

// Account is a login identity as stored in postgres.
type Account struct {
	User
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ServiceOverview is the dashboard's default service selection.
const ServiceOverview = "overview"
