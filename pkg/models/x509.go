package models

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
)

// X509Certificate persists and serializes as PEM text. Storage goes through
// the gorm "text" serializer, JSON through the same representation.
type X509Certificate x509.Certificate

func (c *X509Certificate) String() string {
	text, err := c.MarshalText()
	if err != nil {
		return ""
	}

	return string(text)
}

func (c *X509Certificate) MarshalText() ([]byte, error) {
	if c == nil || len(c.Raw) == 0 {
		return []byte{}, nil
	}

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw}), nil
}

func (c *X509Certificate) UnmarshalText(text []byte) error {
	block, _ := pem.Decode(text)
	if block == nil {
		return fmt.Errorf("missing cert block")
	}

	certificate, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return err
	}

	*c = X509Certificate(*certificate)
	return nil
}

func (c *X509Certificate) MarshalJSON() ([]byte, error) {
	text, err := c.MarshalText()
	if err != nil {
		return nil, err
	}

	return json.Marshal(string(text))
}

func (c *X509Certificate) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}

	return c.UnmarshalText([]byte(text))
}

func (X509Certificate) GormDataType() string {
	return "text"
}
