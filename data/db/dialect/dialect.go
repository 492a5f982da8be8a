// Package dialect 描述 SQL 方言差异：占位符、标识符引用与 upsert 语法
package dialect

import (
	"strconv"
	"strings"

	core "rebind/data/db"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameMySQL    Name = "mysql"
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// Dialect 表示当前数据库的方言能力
type Dialect struct {
	name Name
}

// New 根据字符串构造方言（大小写不敏感）
func New(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql":
		return Dialect{name: NameMySQL}
	case "sqlite", "sqlite3":
		return Dialect{name: NameSQLite}
	case "postgres", "postgresql", "pgx":
		return Dialect{name: NamePostgres}
	default:
		return Dialect{name: NameUnknown}
	}
}

// FromDatabase 从 IDatabase 实例推断方言；未实现 IDialectNameProvider 时返回 Unknown
func FromDatabase(db core.IDatabase) Dialect {
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return Dialect{name: NameUnknown}
}

// Name 返回标准化方言名
func (d Dialect) Name() Name {
	return d.name
}

// ValidIdentifier 判断简单标识符是否合法：[A-Za-z_][A-Za-z0-9_]*，允许 schema.table 形式
func ValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			ch := part[i]
			letter := ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
			digit := ch >= '0' && ch <= '9'
			if !letter && (i == 0 || !digit) {
				return false
			}
		}
	}
	return true
}

// QuoteIdentifier 根据方言对标识符加引号，带点形式按段处理。
// MySQL 使用反引号，Postgres/SQLite 使用双引号，Unknown 方言原样返回。
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "" {
			continue
		}
		switch d.name {
		case NameMySQL:
			parts[i] = "`" + p + "`"
		case NameSQLite, NamePostgres:
			parts[i] = `"` + p + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 将通用占位符 ? 转换为方言特定形式，目前仅 Postgres 替换为 $1、$2...
//
// 简单字符扫描，不区分字符串字面量中的 ?；调用方应只使用参数化写法。
func (d Dialect) Rebind(query string) string {
	if d.name != NamePostgres || query == "" {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 4)
	argIndex := 1
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '?' {
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(argIndex))
			argIndex++
		} else {
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

// Upsert 生成单行 upsert 语句：按 keys 冲突时更新其余列
//
// SQLite/Postgres/Unknown 使用 ON CONFLICT ... DO UPDATE，MySQL 使用 ON DUPLICATE KEY UPDATE。
func (d Dialect) Upsert(table string, columns, keys []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
		placeholders[i] = "?"
	}

	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(d.QuoteIdentifier(table))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.Join(placeholders, ", "))
	sb.WriteString(")")

	var sets []string
	for _, c := range columns {
		if isKey[c] {
			continue
		}
		q := d.QuoteIdentifier(c)
		if d.name == NameMySQL {
			sets = append(sets, q+" = VALUES("+q+")")
		} else {
			sets = append(sets, q+" = excluded."+q)
		}
	}

	if d.name == NameMySQL {
		if len(sets) == 0 {
			// 没有可更新列时用无副作用的自赋值保持幂等
			k := d.QuoteIdentifier(keys[0])
			sets = append(sets, k+" = "+k)
		}
		sb.WriteString(" ON DUPLICATE KEY UPDATE ")
		sb.WriteString(strings.Join(sets, ", "))
		return sb.String()
	}

	quotedKeys := make([]string, len(keys))
	for i, k := range keys {
		quotedKeys[i] = d.QuoteIdentifier(k)
	}
	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(strings.Join(quotedKeys, ", "))
	if len(sets) == 0 {
		sb.WriteString(") DO NOTHING")
		return sb.String()
	}
	sb.WriteString(") DO UPDATE SET ")
	sb.WriteString(strings.Join(sets, ", "))
	return sb.String()
}
