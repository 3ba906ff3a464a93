package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/lamassuiot/dcrl/pkg/chain"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/depot"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// file stores one JSON encoded block per line, in height order.
type file struct {
	mu        sync.Mutex
	chainFile string
	logger    log.Logger
}

func NewFile(chainFile string, logger log.Logger) depot.Depot {
	return &file{chainFile: chainFile, logger: logger}
}

func (f *file) LoadChain(ctx context.Context) (chain.Chain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fd, err := os.Open(f.chainFile)
	if os.IsNotExist(err) {
		level.Info(f.logger).Log("msg", "Chain File does not exist yet")
		return nil, nil
	}
	if err != nil {
		level.Error(f.logger).Log("err", err, "msg", "Could not open Chain File")
		return nil, err
	}
	defer fd.Close()

	var c chain.Chain
	s := bufio.NewScanner(fd)
	s.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for s.Scan() {
		if len(s.Bytes()) == 0 {
			continue
		}
		var b dcrl.Block
		if err := json.Unmarshal(s.Bytes(), &b); err != nil {
			level.Error(f.logger).Log("err", err, "msg", "Could not parse block "+strconv.Itoa(len(c))+" in Chain File")
			return nil, fmt.Errorf("chain file %s line %d: %w", f.chainFile, len(c)+1, err)
		}
		c = append(c, b)
	}
	if err := s.Err(); err != nil {
		level.Error(f.logger).Log("err", err, "msg", "Could not read Chain File")
		return nil, err
	}
	level.Info(f.logger).Log("msg", "Chain File loaded", "blocks", len(c))
	return c, nil
}

func (f *file) AppendBlock(ctx context.Context, b dcrl.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fd, err := os.OpenFile(f.chainFile, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		level.Error(f.logger).Log("err", err, "msg", "Could not open Chain File to append a new block")
		return err
	}
	defer fd.Close()

	// A fresh file starts with genesis so that it always holds a whole chain.
	if st, err := fd.Stat(); err == nil && st.Size() == 0 && b.Height != chain.GenesisHeight {
		if err := writeBlock(fd, chain.Genesis()); err != nil {
			level.Error(f.logger).Log("err", err, "msg", "Could not write genesis block in Chain File")
			return err
		}
	}
	if err := writeBlock(fd, b); err != nil {
		level.Error(f.logger).Log("err", err, "msg", "Could not insert block "+strconv.FormatInt(b.Height, 10)+" in Chain File")
		return err
	}
	level.Info(f.logger).Log("msg", "Block "+strconv.FormatInt(b.Height, 10)+" inserted in Chain File")
	return nil
}

func (f *file) ReplaceChain(ctx context.Context, c chain.Chain) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := f.chainFile + ".tmp"
	fd, err := os.OpenFile(tmp, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		level.Error(f.logger).Log("err", err, "msg", "Could not open Chain File to overwrite the content")
		return err
	}
	for _, b := range c {
		if err := writeBlock(fd, b); err != nil {
			fd.Close()
			level.Error(f.logger).Log("err", err, "msg", "Could not write block "+strconv.FormatInt(b.Height, 10)+" in Chain File")
			return err
		}
	}
	if err := fd.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.chainFile); err != nil {
		level.Error(f.logger).Log("err", err, "msg", "Could not overwrite Chain File")
		return err
	}
	level.Info(f.logger).Log("msg", "Chain File overwritten", "blocks", len(c))
	return nil
}

func writeBlock(fd *os.File, b dcrl.Block) error {
	line, err := json.Marshal(b)
	if err != nil {
		return err
	}
	_, err = fd.Write(append(line, '\n'))
	return err
}
