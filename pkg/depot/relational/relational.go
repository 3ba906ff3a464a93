package relational

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/lamassuiot/dcrl/pkg/chain"
	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/depot"
	"github.com/lamassuiot/dcrl/pkg/hashing"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const connectAttempts = 10

var ErrUnreachable = errors.New("blocks database is unreachable")

type relationalDB struct {
	db     *sql.DB
	logger log.Logger
}

// NewDB opens the blocks database. driverName is "postgres" or "sqlite3";
// both accept the $N placeholders used below.
func NewDB(driverName string, dataSourceName string, logger log.Logger) (depot.Depot, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	err = checkDBAlive(db)
	for i := 1; err != nil; i++ {
		if i == connectAttempts {
			level.Error(logger).Log("err", err, "msg", "Giving up on blocks database")
			db.Close()
			return nil, ErrUnreachable
		}
		level.Warn(logger).Log("msg", "Trying to connect to blocks database", "attempt", i)
		time.Sleep(time.Second)
		err = checkDBAlive(db)
	}

	sqlStatement := `
	CREATE TABLE IF NOT EXISTS dcrl_blocks (
		height BIGINT PRIMARY KEY,
		hash TEXT NOT NULL,
		body TEXT NOT NULL
	);
	`
	if _, err := db.Exec(sqlStatement); err != nil {
		level.Error(logger).Log("err", err, "msg", "Could not create blocks table")
		db.Close()
		return nil, err
	}

	return &relationalDB{db: db, logger: logger}, nil
}

func checkDBAlive(db *sql.DB) error {
	sqlStatement := `
	SELECT 1`
	rows, err := db.Query(sqlStatement)
	if err != nil {
		return err
	}
	return rows.Close()
}

func (r *relationalDB) LoadChain(ctx context.Context) (chain.Chain, error) {
	sqlStatement := `
	SELECT body
	FROM dcrl_blocks
	ORDER BY height;
	`
	rows, err := r.db.QueryContext(ctx, sqlStatement)
	if err != nil {
		level.Error(r.logger).Log("err", err, "msg", "Could not obtain blocks from database")
		return nil, err
	}
	defer rows.Close()

	var c chain.Chain
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			level.Error(r.logger).Log("err", err, "msg", "Could not scan block row")
			return nil, err
		}
		var b dcrl.Block
		if err := json.Unmarshal([]byte(body), &b); err != nil {
			level.Error(r.logger).Log("err", err, "msg", "Could not decode block "+strconv.Itoa(len(c)))
			return nil, err
		}
		c = append(c, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	level.Info(r.logger).Log("msg", "Blocks loaded from database", "blocks", len(c))
	return c, nil
}

func (r *relationalDB) AppendBlock(ctx context.Context, b dcrl.Block) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM dcrl_blocks;`).Scan(&count); err != nil {
		return err
	}
	if count == 0 && b.Height != chain.GenesisHeight {
		if err := insertBlock(ctx, tx, chain.Genesis()); err != nil {
			level.Error(r.logger).Log("err", err, "msg", "Could not insert genesis block in database")
			return err
		}
	}
	if err := insertBlock(ctx, tx, b); err != nil {
		level.Error(r.logger).Log("err", err, "msg", "Could not insert block "+strconv.FormatInt(b.Height, 10)+" in database")
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	level.Info(r.logger).Log("msg", "Block "+strconv.FormatInt(b.Height, 10)+" inserted in database")
	return nil
}

func (r *relationalDB) ReplaceChain(ctx context.Context, c chain.Chain) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dcrl_blocks;`); err != nil {
		level.Error(r.logger).Log("err", err, "msg", "Could not clear blocks table")
		return err
	}
	for _, b := range c {
		if err := insertBlock(ctx, tx, b); err != nil {
			level.Error(r.logger).Log("err", err, "msg", "Could not insert block "+strconv.FormatInt(b.Height, 10)+" in database")
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	level.Info(r.logger).Log("msg", "Chain replaced in database", "blocks", len(c))
	return nil
}

func insertBlock(ctx context.Context, tx *sql.Tx, b dcrl.Block) error {
	body, err := json.Marshal(b)
	if err != nil {
		return err
	}
	sqlStatement := `
	INSERT INTO dcrl_blocks(height, hash, body)
	VALUES($1, $2, $3);
	`
	hash := base64.StdEncoding.EncodeToString(hashing.HashBlock(b))
	_, err = tx.ExecContext(ctx, sqlStatement, b.Height, hash, string(body))
	return err
}
