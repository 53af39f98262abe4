package source

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/parser"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SQLStore is a Fetcher backed by a database holding the equipment history
// tables.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	// loc reads zone-less timestamps on import.
	loc *time.Location
}

// OpenSQLStore opens the database named by driver (duckdb, sqlite, postgres,
// clickhouse) and checks the connection.
func OpenSQLStore(ctx context.Context, driverName, dsn string, loc *time.Location) (*SQLStore, error) {
	d, err := dialectFor(driverName)
	if err != nil {
		return nil, err
	}
	db, err := openDB(d, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connecting to %s", d.Name())
	}
	if loc == nil {
		loc = time.Local
	}
	log.Info().Str("component", "source").Str("driver", d.Name()).Msg("SQL store opened")
	return &SQLStore{db: db, dialect: d, loc: loc}, nil
}

// Driver returns the dialect name.
func (s *SQLStore) Driver() string {
	return s.dialect.Name()
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSchema creates the equipment and history tables when missing.
func (s *SQLStore) CreateSchema(ctx context.Context) error {
	tables := []table{equipmentTable}
	for _, kind := range models.AllKinds {
		tables = append(tables, logTables[kind])
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, t.createSQL(s.dialect)); err != nil {
			return errors.Wrapf(err, "creating table %s", t.name)
		}
	}
	return nil
}

// CountEquipment returns the number of equipment rows, reported by health checks.
func (s *SQLStore) CountEquipment(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+equipmentTable.name).Scan(&n); err != nil {
		return 0, s.queryError("count equipment", err)
	}
	return n, nil
}

// FetchLogs implements Fetcher.
func (s *SQLStore) FetchLogs(ctx context.Context, kind models.Kind, dctx models.DrilldownContext) ([]models.RawRow, error) {
	t, ok := tableFor(kind)
	if !ok {
		return nil, &RequestError{Status: 400, Message: fmt.Sprintf("unknown log kind %q", kind)}
	}
	if !dctx.Complete() {
		return nil, &RequestError{Status: 400, Message: "lineId and eqpId are required"}
	}

	rows, err := s.db.QueryContext(ctx, t.selectSQL(s.dialect), dctx.LineID, dctx.EqpID)
	if err != nil {
		return nil, s.queryError("logs "+t.name, err)
	}
	defer rows.Close()

	out, err := scanRawRows(rows)
	if err != nil {
		return nil, s.queryError("logs "+t.name, err)
	}
	if t.urlPrefix != "" {
		for _, row := range out {
			if key, ok := row[t.urlKey].(string); ok && key != "" {
				row["url"] = t.urlPrefix + key
			}
		}
	}
	return out, nil
}

// FetchOptions implements Fetcher.
func (s *SQLStore) FetchOptions(ctx context.Context, level models.DrilldownLevel, parent models.DrilldownContext) ([]models.Option, error) {
	var (
		col   string
		where []string
		args  []any
	)
	add := func(column, value string) {
		args = append(args, value)
		where = append(where, column+" = "+s.dialect.Placeholder(len(args)))
	}

	switch level {
	case models.LevelLine:
		col = "line_id"
	case models.LevelSdwt:
		if parent.LineID == "" {
			return nil, &RequestError{Status: 400, Message: "lineId is required"}
		}
		col = "sdwt_prod"
		add("line_id", parent.LineID)
	case models.LevelPrcGroup:
		if parent.LineID == "" || parent.SdwtID == "" {
			return nil, &RequestError{Status: 400, Message: "lineId and sdwtId are required"}
		}
		col = "prc_group"
		add("line_id", parent.LineID)
		add("sdwt_prod", parent.SdwtID)
	case models.LevelEquipment:
		if parent.LineID == "" {
			return nil, &RequestError{Status: 400, Message: "lineId is required"}
		}
		col = "eqp_cb"
		add("line_id", parent.LineID)
		if parent.SdwtID != "" {
			add("sdwt_prod", parent.SdwtID)
		}
		if parent.PrcGroup != "" {
			add("prc_group", parent.PrcGroup)
		}
	default:
		return nil, &RequestError{Status: 400, Message: fmt.Sprintf("unknown drilldown level %q", level)}
	}
	where = append(where, col+" IS NOT NULL")

	query := "SELECT DISTINCT " + col + " FROM " + equipmentTable.name +
		" WHERE " + strings.Join(where, " AND ") + " ORDER BY " + col
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.queryError("options "+string(level), err)
	}
	defer rows.Close()

	var opts []models.Option
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, s.queryError("options "+string(level), err)
		}
		label := v
		if level == models.LevelLine {
			label = "Line " + v
		}
		opts = append(opts, models.Option{Value: v, Label: label})
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryError("options "+string(level), err)
	}
	return opts, nil
}

// EquipmentInfo implements Fetcher.
func (s *SQLStore) EquipmentInfo(ctx context.Context, lineID, eqpID string) (*models.EquipmentInfo, error) {
	query := "SELECT line_id, sdwt_prod, prc_group, eqp_cb FROM " + equipmentTable.name +
		" WHERE eqp_cb = " + s.dialect.Placeholder(1) + " AND line_id = " + s.dialect.Placeholder(2) + " LIMIT 1"

	var sdwt, prc sql.NullString
	info := &models.EquipmentInfo{}
	err := s.db.QueryRowContext(ctx, query, eqpID, lineID).Scan(&info.LineID, &sdwt, &prc, &info.EqpID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: fmt.Sprintf("equipment %s in line %s", eqpID, lineID)}
	}
	if err != nil {
		return nil, s.queryError("equipment-info", err)
	}
	info.SdwtID = sdwt.String
	info.PrcGroup = prc.String
	return info, nil
}

// Import bulk-loads raw rows of kind. Rows use the column names of the history
// table or the keys the normalizer reads. Returns the number of rows written.
func (s *SQLStore) Import(ctx context.Context, kind models.Kind, rows []models.RawRow) (int, error) {
	t, ok := tableFor(kind)
	if !ok {
		return 0, errors.Errorf("unknown log kind %q", kind)
	}
	return s.importRows(ctx, t, rows)
}

// ImportEquipment bulk-loads rows of the equipment hierarchy table.
func (s *SQLStore) ImportEquipment(ctx context.Context, rows []models.RawRow) (int, error) {
	return s.importRows(ctx, equipmentTable, rows)
}

func (s *SQLStore) importRows(ctx context.Context, t table, rows []models.RawRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	start := time.Now()
	values := make([][]driver.Value, 0, len(rows))
	for _, row := range rows {
		values = append(values, s.rowValues(t, row))
	}

	var err error
	if _, ok := s.dialect.(duckDialect); ok {
		err = s.appendDuck(ctx, t, values)
	} else {
		err = s.insertBatch(ctx, t, values)
	}
	if err != nil {
		return 0, err
	}
	log.Info().Str("component", "source").Str("table", t.name).Int("rows", len(values)).
		Dur("elapsed", time.Since(start)).Msg("import complete")
	return len(values), nil
}

// appendDuck writes values through the native DuckDB Appender.
func (s *SQLStore) appendDuck(ctx context.Context, t table, values [][]driver.Value) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "getting connection")
	}
	defer conn.Close()

	return conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return errors.New("connection is not a duckdb.Conn")
		}
		appender, err := duckdb.NewAppenderFromConn(dConn, "", t.name)
		if err != nil {
			return errors.Wrap(err, "creating appender")
		}
		defer appender.Close()

		for i, row := range values {
			if err := appender.AppendRow(row...); err != nil {
				return errors.Wrapf(err, "appending row %d", i)
			}
		}
		return appender.Flush()
	})
}

// insertBatch writes values with one prepared INSERT inside a transaction.
func (s *SQLStore) insertBatch(ctx context.Context, t table, values [][]driver.Value) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	stmt, err := tx.PrepareContext(ctx, t.insertSQL(s.dialect))
	if err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "preparing insert into %s", t.name)
	}
	defer stmt.Close()

	for i, row := range values {
		args := make([]any, len(row))
		for j, v := range row {
			args[j] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "inserting row %d into %s", i, t.name)
		}
	}
	return errors.Wrap(tx.Commit(), "committing import")
}

// rowValues orders the values of row by the columns of t. Unparseable times
// and missing values become NULL.
func (s *SQLStore) rowValues(t table, row models.RawRow) []driver.Value {
	out := make([]driver.Value, len(t.columns))
	for i, c := range t.columns {
		var raw any
		for _, k := range c.keys() {
			if v, ok := row[k]; ok && v != nil {
				raw = v
				break
			}
		}
		if raw == nil {
			continue
		}
		if c.typ == colTime {
			if ts, ok := parser.ParseTime(raw, s.loc); ok {
				out[i] = ts.UTC()
			}
			continue
		}
		if str := textValue(raw); str != "" {
			out[i] = str
		}
	}
	return out
}

func (s *SQLStore) queryError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &NetworkError{Op: op, Err: errors.Wrapf(err, "%s query failed", s.dialect.Name())}
}

func textValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// scanRawRows reads every row into a RawRow keyed by column name.
func scanRawRows(rows *sql.Rows) ([]models.RawRow, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []models.RawRow
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(models.RawRow, len(cols))
		for i, c := range cols {
			row[c] = plainValue(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// plainValue unwraps driver-specific representations of nullable columns.
func plainValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case *string:
		if t == nil {
			return nil
		}
		return *t
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	}
	return v
}
