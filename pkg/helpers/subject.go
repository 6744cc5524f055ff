package helpers

import (
	"crypto/x509/pkix"
	"fmt"
	"strings"

	"github.com/Infisical/infisical-sub034/pkg/models"
)

func SubjectToPkixName(subj models.Subject) pkix.Name {
	subjPkix := pkix.Name{}

	if subj.CommonName != "" {
		subjPkix.CommonName = subj.CommonName
	}

	if subj.Country != "" {
		subjPkix.Country = []string{
			subj.Country,
		}
	}

	if subj.Locality != "" {
		subjPkix.Locality = []string{
			subj.Locality,
		}
	}

	if subj.Organization != "" {
		subjPkix.Organization = []string{
			subj.Organization,
		}
	}

	if subj.OrganizationUnit != "" {
		subjPkix.OrganizationalUnit = []string{
			subj.OrganizationUnit,
		}
	}

	if subj.State != "" {
		subjPkix.Province = []string{
			subj.State,
		}
	}

	return subjPkix
}

func PkixNameToSubject(pkixName pkix.Name) models.Subject {
	subject := models.Subject{
		CommonName: pkixName.CommonName,
	}

	if len(pkixName.Country) > 0 {
		subject.Country = pkixName.Country[0]
	}
	if len(pkixName.Organization) > 0 {
		subject.Organization = pkixName.Organization[0]
	}
	if len(pkixName.OrganizationalUnit) > 0 {
		subject.OrganizationUnit = pkixName.OrganizationalUnit[0]
	}
	if len(pkixName.Locality) > 0 {
		subject.Locality = pkixName.Locality[0]
	}
	if len(pkixName.Province) > 0 {
		subject.State = pkixName.Province[0]
	}

	return subject
}

// BuildDistinguishedName assembles the DN string from the subject fields in
// the fixed order CN, O, OU, L, ST, C. When only the common name is set the
// result collapses to "CN=<commonName>".
func BuildDistinguishedName(subj models.Subject) string {
	parts := []string{}

	if subj.CommonName != "" {
		parts = append(parts, fmt.Sprintf("CN=%s", subj.CommonName))
	}
	if subj.Organization != "" {
		parts = append(parts, fmt.Sprintf("O=%s", subj.Organization))
	}
	if subj.OrganizationUnit != "" {
		parts = append(parts, fmt.Sprintf("OU=%s", subj.OrganizationUnit))
	}
	if subj.Locality != "" {
		parts = append(parts, fmt.Sprintf("L=%s", subj.Locality))
	}
	if subj.State != "" {
		parts = append(parts, fmt.Sprintf("ST=%s", subj.State))
	}
	if subj.Country != "" {
		parts = append(parts, fmt.Sprintf("C=%s", subj.Country))
	}

	if len(parts) == 0 {
		return fmt.Sprintf("CN=%s", subj.CommonName)
	}

	return strings.Join(parts, ", ")
}
