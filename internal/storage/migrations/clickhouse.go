package migrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	chstore "kalshi-trader/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the database named in dsn if needed, applies
// every embedded script and returns a connection to that database.
// ClickHouse scripts must be idempotent; no applied-version ledger is kept.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	db, err := chstore.DatabaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	list, err := scripts(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	err = admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS `"+db+"`")
	admin.Close()
	if err != nil {
		return nil, fmt.Errorf("create database %s: %w", db, err)
	}

	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return nil, err
	}
	for _, s := range list {
		stmts, err := splitStatements(s.SQL)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("parse migration %s: %w", s.Name, err)
		}
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply migration %s: %w", s.Name, err)
			}
		}
	}
	return conn, nil
}

var errUnterminatedQuote = errors.New("unterminated quoted string")

// splitStatements splits a script on semicolons outside quotes, dropping
// -- line comments. The native driver executes one statement per call.
func splitStatements(sql string) ([]string, error) {
	var (
		stmts []string
		cur   strings.Builder
		quote byte
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(sql) {
				i++
				cur.WriteByte(sql[i])
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
			cur.WriteByte(c)
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			cur.WriteByte('\n')
		case c == ';':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	if quote != 0 {
		return nil, errUnterminatedQuote
	}
	flush()
	return stmts, nil
}
