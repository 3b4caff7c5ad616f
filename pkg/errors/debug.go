package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// DriverError is the storage-driver view of a failure, whichever backend
// raised it.
type DriverError struct {
	Driver     string `json:"driver"`
	Code       string `json:"code,omitempty"`
	Extended   string `json:"extended,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Fields flattens the driver error for structured logging.
func (d *DriverError) Fields() map[string]any {
	if d == nil {
		return nil
	}
	fields := map[string]any{"db_driver": d.Driver, "db_code": d.Code}
	for key, value := range map[string]string{
		"db_extended":   d.Extended,
		"db_constraint": d.Constraint,
		"db_table":      d.Table,
		"db_column":     d.Column,
		"db_detail":     d.Detail,
		"db_message":    d.Message,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

type ErrorDump struct {
	TopMessage string       `json:"top_message"`
	Code       Code         `json:"code,omitempty"`
	Chain      []string     `json:"chain,omitempty"`
	DB         *DriverError `json:"db,omitempty"`
}

// Dump expands err into its typed code, its wrap chain and, when a database
// driver produced it, the driver details.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.DB = driverError(err)
	return d
}

func driverError(err error) *DriverError {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &DriverError{
			Driver:     "pgx",
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &DriverError{
			Driver:     "pq",
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return &DriverError{
			Driver:   "sqlite",
			Code:     liteErr.Code.Error(),
			Extended: liteErr.ExtendedCode.Error(),
			Message:  liteErr.Error(),
		}
	}
	return nil
}
