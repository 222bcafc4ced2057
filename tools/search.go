package tools

import (
	"context"
	"fmt"

	"github.com/LubyRuffy/shopchat"
	"github.com/LubyRuffy/shopchat/catalog"
	"github.com/LubyRuffy/shopchat/chatapi"
	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
)

const SearchProductsName = "search_products"

// Searcher 是商品目录的只读查询能力，没有匹配时必须返回空切片。
type Searcher interface {
	Search(ctx context.Context, filter catalog.Filter, limit int) ([]catalog.Product, error)
}

type searchProductsArgs struct {
	Keyword string `json:"keyword"`
}

// SearchProductsInfo 是 search_products 对模型的声明。
func SearchProductsInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: SearchProductsName,
		Desc: fmt.Sprintf("Search active products in the store catalog by a keyword contained in the product name. "+
			"Returns at most %d products with id, name, price and image.", shopchat.MaxSearchResults),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"keyword": {
				Type: schema.String,
				Desc: "Case-insensitive keyword matched against product names, e.g. an ingredient. Omit to list any active products.",
			},
		}),
	}
}

// SearchProductsHandler 基于 searcher 构造 search_products 的 Handler。
func SearchProductsHandler(searcher Searcher) Handler {
	return func(ctx context.Context, arguments string) ([]chatapi.Product, error) {
		var args searchProductsArgs
		if err := sonic.UnmarshalString(arguments, &args); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedArguments, err)
		}

		products, err := searcher.Search(ctx, catalog.Filter{Keyword: args.Keyword}, shopchat.MaxSearchResults)
		if err != nil {
			return nil, fmt.Errorf("search products: %w", err)
		}
		if len(products) > shopchat.MaxSearchResults {
			products = products[:shopchat.MaxSearchResults]
		}

		out := make([]chatapi.Product, 0, len(products))
		for _, p := range products {
			out = append(out, chatapi.Product{ID: p.ID, Name: p.Name, Price: p.Price, Image: p.Image})
		}
		return out, nil
	}
}

// NewCatalogDispatcher 返回只注册了 search_products 的 Dispatcher。
func NewCatalogDispatcher(searcher Searcher) (*Dispatcher, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	d := NewDispatcher()
	if err := d.Register(SearchProductsInfo(), SearchProductsHandler(searcher)); err != nil {
		return nil, err
	}
	return d, nil
}
