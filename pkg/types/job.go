package types

import "time"

type JobType string

const (
	JobTypeKitchen    JobType = "kitchen"
	JobTypeBathroom   JobType = "bathroom"
	JobTypeElectrical JobType = "electrical"
	JobTypePlumbing   JobType = "plumbing"
	JobTypeRoofing    JobType = "roofing"
	JobTypeExtension  JobType = "extension"
	JobTypeRenovation JobType = "renovation"
	JobTypeOther      JobType = "other"
)

var jobTypeLabels = map[JobType]string{
	JobTypeKitchen:    "Kitchen",
	JobTypeBathroom:   "Bathroom",
	JobTypeElectrical: "Electrical",
	JobTypePlumbing:   "Plumbing",
	JobTypeRoofing:    "Roofing",
	JobTypeExtension:  "Extension",
	JobTypeRenovation: "Renovation",
	JobTypeOther:      "Other",
}

func (t JobType) Valid() bool {
	_, ok := jobTypeLabels[t]
	return ok
}

func (t JobType) Label() string {
	if l, ok := jobTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

type Job struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	ClientName       string     `db:"client_name" json:"client_name"`
	ClientPhone      *string    `db:"client_phone" json:"client_phone"`
	ClientAddress    *string    `db:"client_address" json:"client_address"`
	JobType          JobType    `db:"job_type" json:"job_type"`
	Description      *string    `db:"description" json:"description"`
	ContractValue    *float64   `db:"contract_value" json:"contract_value"`
	StartDate        *time.Time `db:"start_date" json:"start_date"`
	CompletionDate   *time.Time `db:"completion_date" json:"completion_date"`
	ProtectionStatus int        `db:"protection_status" json:"protection_status"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}
