package helpers

import (
	"testing"

	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestBuildDistinguishedName(t *testing.T) {
	testcases := []struct {
		name    string
		subject models.Subject
		want    string
	}{
		{
			name: "FullSubjectKeepsFixedOrder",
			subject: models.Subject{
				CommonName:       "svc.example.com",
				Organization:     "Example Corp",
				OrganizationUnit: "Platform",
				Locality:         "Donostia",
				State:            "Gipuzkoa",
				Country:          "ES",
			},
			want: "CN=svc.example.com, O=Example Corp, OU=Platform, L=Donostia, ST=Gipuzkoa, C=ES",
		},
		{
			name: "SkipsEmptyFields",
			subject: models.Subject{
				CommonName: "svc.example.com",
				Country:    "ES",
			},
			want: "CN=svc.example.com, C=ES",
		},
		{
			name:    "EmptySubjectFallsBackToCN",
			subject: models.Subject{},
			want:    "CN=",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BuildDistinguishedName(tc.subject))
		})
	}
}

func TestSubjectPkixRoundTrip(t *testing.T) {
	subject := models.Subject{
		CommonName:       "svc.example.com",
		Organization:     "Example Corp",
		OrganizationUnit: "Platform",
		Locality:         "Donostia",
		State:            "Gipuzkoa",
		Country:          "ES",
	}

	assert.Equal(t, subject, PkixNameToSubject(SubjectToPkixName(subject)))
}
