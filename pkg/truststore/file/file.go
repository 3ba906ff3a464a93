package file

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/lamassuiot/dcrl/pkg/truststore"
	"github.com/lamassuiot/dcrl/pkg/utils"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// NewFile loads trusted certificates from path. A directory contributes every
// regular file in it; files that do not hold a certificate are skipped.
func NewFile(path string, logger log.Logger) (*truststore.Memory, error) {
	info, err := os.Stat(path)
	if err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not open trust store")
		return nil, err
	}
	paths := []string{path}
	if info.IsDir() {
		entries, err := ioutil.ReadDir(path)
		if err != nil {
			level.Error(logger).Log("err", err, "msg", "Could not list trust store directory")
			return nil, err
		}
		paths = paths[:0]
		for _, e := range entries {
			if e.Mode().IsRegular() {
				paths = append(paths, filepath.Join(path, e.Name()))
			}
		}
	}

	store := truststore.NewMemory()
	for _, p := range paths {
		data, err := ioutil.ReadFile(p)
		if err != nil {
			level.Warn(logger).Log("err", err, "msg", "Could not read trusted certificate", "file", p)
			continue
		}
		cert, err := utils.DecodeCertificate(data)
		if err != nil {
			level.Debug(logger).Log("err", err, "msg", "Skipping file without a certificate", "file", p)
			continue
		}
		store.Add(cert)
		level.Info(logger).Log("msg", "Trusted certificate loaded", "subject", cert.Subject, "file", p)
	}
	return store, nil
}
