package types

// IssuerProfile is the tradesperson identity printed on report covers.
type IssuerProfile struct {
	BusinessName  string
	ContactName   string
	Email         string
	Phone         string
	Address       string
	LicenseNumber string
}

func (p IssuerProfile) DisplayName() string {
	if p.BusinessName != "" {
		return p.BusinessName
	}
	if p.ContactName != "" {
		return p.ContactName
	}
	return p.Email
}
