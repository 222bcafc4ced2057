// Package catalog 是商品目录的只读查询端（SQLite 存储）。
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// MemoryDSN 是进程内临时目录的 DSN，Store 关闭即丢弃。
const MemoryDSN = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS products (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    name_fold TEXT NOT NULL,
    price REAL NOT NULL DEFAULT 0,
    image TEXT NOT NULL DEFAULT '',
    active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_products_active ON products(active);
`

// Product 是目录中的一条商品记录。
type Product struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Image  string  `json:"image"`
	Active bool    `json:"active"`
}

// Filter 商品查询条件。只会返回 active 商品；Keyword 为空时不限制名称。
type Filter struct {
	Keyword string
}

// Store 基于 SQLite 的商品目录。
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）目录数据库。dsn 为空时使用内存库。
func Open(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = MemoryDSN
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		// 内存库按连接隔离，只保留一个连接才能看到同一份数据
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize catalog schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert 按 id 插入或覆盖商品。
func (s *Store) Upsert(ctx context.Context, products ...Product) error {
	if len(products) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO products (id, name, name_fold, price, image, active) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    name_fold = excluded.name_fold,
    price = excluded.price,
    image = excluded.image,
    active = excluded.active`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("product id is required")
		}
		if _, err := stmt.ExecContext(ctx, id, p.Name, foldName(p.Name), p.Price, p.Image, p.Active); err != nil {
			return fmt.Errorf("upsert product %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Search 返回名称包含 keyword（不区分大小写）的 active 商品，按写入顺序，最多 limit 条。
// 没有匹配时返回空切片而不是错误。
func (s *Store) Search(ctx context.Context, filter Filter, limit int) ([]Product, error) {
	if limit <= 0 {
		return []Product{}, nil
	}

	query := `SELECT id, name, price, image, active FROM products WHERE active = TRUE`
	args := make([]any, 0, 2)
	if keyword := foldName(filter.Keyword); keyword != "" {
		query += ` AND name_fold LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(keyword)+"%")
	}
	query += ` ORDER BY rowid LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Image, &p.Active); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return out, nil
}

// Count 返回目录中的商品总数（含下架商品）。
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// foldName 用 Go 的 Unicode 小写规则折叠，SQLite 内置 lower() 只处理 ASCII。
func foldName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
