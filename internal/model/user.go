package model

import "time"

const (
	UserTypeCustomer = "customer"
	UserTypeMerchant = "merchant"
	UserTypeAgent    = "agent"
)

func IsValidUserType(userType string) bool {
	return userType == UserTypeCustomer || userType == UserTypeMerchant || userType == UserTypeAgent
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	UserType     string    `json:"userType"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
