package source

import (
	"strings"

	"github.com/pjw7536/react-timeline2/internal/models"
)

type colType int

const (
	colText colType = iota
	colTime
)

// column is one column of an upstream history table. aliases are the raw row
// keys accepted on import besides the column name.
type column struct {
	name     string
	typ      colType
	nullable bool
	aliases  []string
	// as renames the column in log queries so the normalizer sees its key.
	as string
}

func (c column) selectExpr() string {
	if c.as == "" {
		return c.name
	}
	return c.name + " AS " + c.as
}

func (c column) keys() []string {
	return append([]string{c.name}, c.aliases...)
}

type table struct {
	name    string
	columns []column
	orderBy []string
	// urlPrefix builds the url of a row from its urlKey column when set.
	urlPrefix string
	urlKey    string
}

var (
	colID       = column{name: "id", typ: colText}
	colLineID   = column{name: "line_id", typ: colText, aliases: []string{"lineId"}}
	colSdwtProd = column{name: "sdwt_prod", typ: colText, nullable: true, aliases: []string{"sdwtId", "sdwt_id"}}
	colEqpCB    = column{name: "eqp_cb", typ: colText, aliases: []string{"eqpId", "eqp_id"}}
	colEvent    = column{name: "event_time", typ: colTime, aliases: []string{"eventTime", "timestamp"}}
	colEnd      = column{name: "end_time", typ: colTime, nullable: true, aliases: []string{"endTime"}}
	colOperator = column{name: "operator", typ: colText, nullable: true}
	colComment  = column{name: "comment", typ: colText, nullable: true}
)

func typeColumn(name string) column {
	return column{name: name, typ: colText, nullable: true, aliases: []string{"eventType", "event_type", "status"}, as: "event_type"}
}

func textColumn(name string, aliases ...string) column {
	return column{name: name, typ: colText, nullable: true, aliases: aliases}
}

func historyTable(name string, typeCol string, extra ...column) table {
	cols := []column{colID, colLineID, colSdwtProd, colEqpCB, typeColumn(typeCol), colEvent, colEnd, colOperator, colComment}
	return table{
		name:    name,
		columns: append(cols, extra...),
		orderBy: []string{"line_id", "eqp_cb", "event_time"},
	}
}

var equipmentTable = table{
	name: "sdwt_eqp",
	columns: []column{
		colLineID,
		textColumn("sdwt_prod", "sdwtId", "sdwt_id"),
		textColumn("prc_group", "prcGroup"),
		colEqpCB,
	},
	orderBy: []string{"line_id", "eqp_cb"},
}

// logTables maps each kind to its history table.
var logTables = map[models.Kind]table{
	models.KindEquipmentState: historyTable("eqp_status_hist", "status_type"),
	models.KindInterlock: withURL(historyTable("gpm_tip_hist", "tip_type",
		textColumn("process"),
		textColumn("step"),
		textColumn("ppid", "partId", "part_id"),
		textColumn("level"),
	), "https://tip.example.com/issue/", "id"),
	models.KindAlarm: withURL(historyTable("racb_list", "alarm_type"),
		"https://racb.example.com/alarm/", "id"),
	models.KindRecipeChange: historyTable("ctttm_log_hist", "ctttm_type",
		textColumn("recipe_id", "recipe"),
	),
	models.KindIssue: withURL(historyTable("jira_issue_hist", "issue_status",
		textColumn("issue_key", "issueKey"),
		textColumn("assignee"),
		textColumn("priority"),
		textColumn("reporter"),
		textColumn("summary"),
		textColumn("description"),
	), "https://jira.example.com/browse/", "issue_key"),
}

func withURL(t table, prefix, key string) table {
	t.urlPrefix = prefix
	t.urlKey = key
	return t
}

// tableFor returns the history table of kind.
func tableFor(kind models.Kind) (table, bool) {
	t, ok := logTables[kind]
	return t, ok
}

func (t table) createSQL(d dialect) string {
	defs := make([]string, len(t.columns))
	for i, c := range t.columns {
		defs[i] = c.name + " " + d.ColumnType(c)
	}
	return "CREATE TABLE IF NOT EXISTS " + t.name + " (" + strings.Join(defs, ", ") + ")" + d.TableSuffix(t)
}

func (t table) insertSQL(d dialect) string {
	names := make([]string, len(t.columns))
	marks := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
		marks[i] = d.Placeholder(i + 1)
	}
	return "INSERT INTO " + t.name + " (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
}

func (t table) selectSQL(d dialect) string {
	exprs := make([]string, len(t.columns))
	for i, c := range t.columns {
		exprs[i] = c.selectExpr()
	}
	return "SELECT " + strings.Join(exprs, ", ") + " FROM " + t.name +
		" WHERE line_id = " + d.Placeholder(1) + " AND eqp_cb = " + d.Placeholder(2) +
		" ORDER BY event_time"
}
