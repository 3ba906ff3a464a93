package truststore

import (
	"sync"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/hashing"
)

// Store resolves certificate hashes to trusted certificates.
type Store interface {
	Lookup(hash []byte) (dcrl.Certificate, bool)
	Certificates() []dcrl.Certificate
}

type Memory struct {
	mu    sync.RWMutex
	certs map[string]dcrl.Certificate
}

func NewMemory(certs ...dcrl.Certificate) *Memory {
	m := &Memory{certs: make(map[string]dcrl.Certificate, len(certs))}
	for _, c := range certs {
		m.Add(c)
	}
	return m
}

func (m *Memory) Add(c dcrl.Certificate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.certs[string(hashing.HashCertificate(c))] = c
}

func (m *Memory) Lookup(hash []byte) (dcrl.Certificate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.certs[string(hash)]
	return c, ok
}

func (m *Memory) Certificates() []dcrl.Certificate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dcrl.Certificate, 0, len(m.certs))
	for _, c := range m.certs {
		out = append(out, c)
	}
	return out
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.certs)
}
