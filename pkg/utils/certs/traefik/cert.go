package traefik

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// acmeCert is the per-domain entry inside traefik's acme.json.
type acmeCert struct {
	Certificate string `json:"certificate"`
	Key         string `json:"key"`
}

// CertFromFile extracts the TLS certificate for domain from a traefik
// acme.json file. Useful when the manager runs next to a traefik instance
// and should reuse its certificates.
func CertFromFile(file, domain string) (tls.Certificate, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return tls.Certificate{}, err
	}
	return CertFromJSON(string(data), domain)
}

func CertFromJSON(jsonData, domain string) (tls.Certificate, error) {
	certData, keyData, err := certData(jsonData, domain)
	if err != nil {
		return tls.Certificate{}, err
	}
	decodedCert, err := base64.StdEncoding.DecodeString(certData)
	if err != nil {
		return tls.Certificate{}, err
	}
	decodedKey, err := base64.StdEncoding.DecodeString(keyData)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(decodedCert, decodedKey)
}

// certData picks the matching certificate entry regardless of the resolver
// it is stored under.
func certData(jsonData, domain string) (cert, key string, err error) {
	obj, err := oj.ParseString(jsonData)
	if err != nil {
		return "", "", err
	}

	jPath := fmt.Sprintf(`$..Certificates[?(@.domain.main == %q)]`, domain)
	path, err := jp.ParseString(jPath)
	if err != nil {
		return "", "", err
	}
	res := path.Get(obj)
	if len(res) == 0 {
		return "", "", fmt.Errorf("no certificate for domain %s", domain)
	}

	entry := acmeCert{}
	if err := oj.Unmarshal([]byte(oj.JSON(res[0])), &entry); err != nil {
		return "", "", err
	}
	return entry.Certificate, entry.Key, nil
}
