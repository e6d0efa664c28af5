package models

import "time"

type User struct {
	UserId         int       `json:"user_id" bson:"user_id"`
	Username       string    `json:"username" bson:"username"`
	Email          string    `json:"email_id" bson:"email_id"`
	Phone          string    `json:"phone_no,omitempty" bson:"phone_no,omitempty"`
	RoleId         int       `json:"role_id" bson:"role_id"`
	WalletBalance  float64   `json:"wallet_bal" bson:"wallet_bal"`
	RfidTag        string    `json:"rfid_tag,omitempty" bson:"rfid_tag,omitempty"`
	IsEnabled      bool      `json:"status" bson:"status"`
	DateRegistered time.Time `json:"created_at" bson:"created_at"`
}
