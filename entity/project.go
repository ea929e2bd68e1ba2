package entity

import (
	"strings"
	"time"
)

// Hash algorithms for the keyed digest banks
const (
	AlgorithmMD5    = "md5"
	AlgorithmSHA1   = "sha1"
	AlgorithmSHA256 = "sha256"
)

// Certificate is a PEM encoded RSA key pair with a self-signed certificate.
type Certificate struct {
	ClientKey   string    `json:"-" bson:"client_key"`
	Certificate string    `json:"certificate" bson:"certificate"`
	Expires     time.Time `json:"expires" bson:"expires"`
}

// Project is a merchant configuration bound to a single bank profile.
type Project struct {
	Id                    string      `json:"id" bson:"_id"`
	Uid                   string      `json:"uid" bson:"uid"`
	Name                  string      `json:"name" bson:"name"`
	Description           string      `json:"description" bson:"description"`
	Bank                  string      `json:"bank" bson:"bank"`
	Owner                 string      `json:"owner" bson:"owner"`
	AuthorizedUsers       []string    `json:"authorized_users" bson:"authorized_users"`
	Secret                string      `json:"-" bson:"secret"`
	SoloAlgo              string      `json:"solo_algo" bson:"solo_algo"`
	SoloAutoResponse      bool        `json:"solo_auto_response" bson:"solo_auto_response"`
	EcUrl                 string      `json:"ec_url" bson:"ec_url"`
	IpizzaReceiverName    string      `json:"ipizza_receiver_name" bson:"ipizza_receiver_name"`
	IpizzaReceiverAccount string      `json:"ipizza_receiver_account" bson:"ipizza_receiver_account"`
	UserCertificate       Certificate `json:"user_certificate" bson:"user_certificate"`
	BankCertificate       Certificate `json:"bank_certificate" bson:"bank_certificate"`
	CreatedDate           time.Time   `json:"created_date" bson:"created_date"`
	UpdatedDate           time.Time   `json:"updated_date" bson:"updated_date"`
}

// Algorithm is the configured digest algorithm, md5 when not set.
func (p *Project) Algorithm() string {
	if p.SoloAlgo == "" {
		return AlgorithmMD5
	}
	return strings.ToLower(p.SoloAlgo)
}

// IsAuthorized reports whether user may operate the project.
func (p *Project) IsAuthorized(user string) bool {
	if user == "" {
		return false
	}
	if p.Owner == user {
		return true
	}
	for _, u := range p.AuthorizedUsers {
		if u == user {
			return true
		}
	}
	return false
}
