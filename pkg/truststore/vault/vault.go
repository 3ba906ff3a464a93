package vault

import (
	"fmt"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/truststore"
	"github.com/lamassuiot/dcrl/pkg/utils"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/hashicorp/vault/api"
)

type vaultSecrets struct {
	client *api.Client
	mount  string
	logger log.Logger
}

// NewVaultTrustStore logs in with AppRole and loads every certificate stored
// under mount. Each secret keeps its PEM in the "certificate" field.
func NewVaultTrustStore(address string, roleID string, secretID string, mount string, logger log.Logger) (*truststore.Memory, error) {
	conf := api.DefaultConfig()
	conf.Address = address
	tlsConf := &api.TLSConfig{Insecure: true}
	conf.ConfigureTLS(tlsConf)
	client, err := api.NewClient(conf)
	if err != nil {
		return nil, err
	}

	err = login(client, roleID, secretID)
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not log in to Vault")
		return nil, err
	}
	vs := &vaultSecrets{client: client, mount: mount, logger: logger}
	return vs.load()
}

func login(client *api.Client, roleID string, secretID string) error {
	loginPath := "auth/approle/login"
	options := map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	}
	resp, err := client.Logical().Write(loginPath, options)
	if err != nil {
		return err
	}
	if resp == nil || resp.Auth == nil {
		return fmt.Errorf("approle login returned no token")
	}
	client.SetToken(resp.Auth.ClientToken)
	return nil
}

func (vs *vaultSecrets) load() (*truststore.Memory, error) {
	store := truststore.NewMemory()
	resp, err := vs.client.Logical().List(vs.mount)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		level.Warn(vs.logger).Log("msg", "No trusted certificates in Vault", "mount", vs.mount)
		return store, nil
	}
	keys, _ := resp.Data["keys"].([]interface{})
	for _, k := range keys {
		name, ok := k.(string)
		if !ok {
			continue
		}
		cert, err := vs.read(vs.mount + "/" + name)
		if err != nil {
			level.Warn(vs.logger).Log("err", err, "msg", "Skipping trusted certificate", "key", name)
			continue
		}
		store.Add(cert)
		level.Info(vs.logger).Log("msg", "Trusted certificate loaded", "subject", cert.Subject, "key", name)
	}
	return store, nil
}

func (vs *vaultSecrets) read(path string) (cert dcrl.Certificate, err error) {
	resp, err := vs.client.Logical().Read(path)
	if err != nil {
		return cert, err
	}
	if resp == nil {
		return cert, fmt.Errorf("secret %s not found", path)
	}
	data, ok := resp.Data["certificate"].(string)
	if !ok {
		return cert, fmt.Errorf("secret %s has no certificate field", path)
	}
	return utils.DecodeCertificate([]byte(data))
}
