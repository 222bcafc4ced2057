package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
)

type seedProduct struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Image  string  `json:"image"`
	Active *bool   `json:"active"`
}

// LoadSeedFile 从 JSON 数组文件导入商品（upsert）。未写 active 的商品视为上架。
func (s *Store) LoadSeedFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	return s.LoadSeed(ctx, data)
}

// LoadSeed 同 LoadSeedFile，输入为 JSON 内容。
func (s *Store) LoadSeed(ctx context.Context, data []byte) (int, error) {
	var seeds []seedProduct
	if err := sonic.Unmarshal(data, &seeds); err != nil {
		return 0, fmt.Errorf("parse seed: %w", err)
	}

	products := make([]Product, 0, len(seeds))
	for _, sp := range seeds {
		active := true
		if sp.Active != nil {
			active = *sp.Active
		}
		products = append(products, Product{
			ID:     sp.ID,
			Name:   sp.Name,
			Price:  sp.Price,
			Image:  sp.Image,
			Active: active,
		})
	}
	if err := s.Upsert(ctx, products...); err != nil {
		return 0, err
	}
	return len(products), nil
}
