package patient

import "time"

const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

type Patient struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Age              int       `json:"age"`
	Gender           string    `json:"gender"`
	Phone            string    `json:"phone"`
	Email            *string   `json:"email,omitempty"`
	Address          *string   `json:"address,omitempty"`
	EmergencyContact *string   `json:"emergencyContact,omitempty"`
	EmergencyPhone   *string   `json:"emergencyPhone,omitempty"`
	MedicalHistory   *string   `json:"medicalHistory,omitempty"`
	Active           bool      `json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Input is the request body for create (name, age, gender and phone
// required) and update (every field optional).
type Input struct {
	Name             *string `json:"name"`
	Age              *int    `json:"age"`
	Gender           *string `json:"gender"`
	Phone            *string `json:"phone"`
	Email            *string `json:"email"`
	Address          *string `json:"address"`
	EmergencyContact *string `json:"emergencyContact"`
	EmergencyPhone   *string `json:"emergencyPhone"`
	MedicalHistory   *string `json:"medicalHistory"`
}

// ListFilter narrows List to active patients whose name or phone contain the
// given substrings, case-insensitively, and with the exact gender.
type ListFilter struct {
	Name   string
	Phone  string
	Gender string
}
